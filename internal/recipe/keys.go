// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the build-context ignore file read from the project root.
const IgnoreFileName = ".dockerignore"

// Ignore filters project-relative paths out of the build context.
type Ignore struct {
	matcher *ignore.GitIgnore
}

// LoadIgnore reads .dockerignore from root. A missing file yields a filter
// that matches nothing.
func LoadIgnore(root string) (*Ignore, error) {
	f, err := os.Open(filepath.Join(root, IgnoreFileName))
	if os.IsNotExist(err) {
		return &Ignore{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", IgnoreFileName, err)
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFileName, err)
	}
	return NewIgnore(patterns...), nil
}

// NewIgnore compiles gitignore-style patterns.
func NewIgnore(patterns ...string) *Ignore {
	if len(patterns) == 0 {
		return &Ignore{}
	}
	return &Ignore{matcher: ignore.CompileIgnoreLines(patterns...)}
}

// Matches reports whether the slash-separated, project-relative path is excluded.
func (i *Ignore) Matches(rel string) bool {
	if i == nil || i.matcher == nil {
		return false
	}
	return i.matcher.MatchesPath(rel)
}

// LayerKeys computes the chained cache key of every step. Each key covers the
// previous key, the step instruction and the content of the step's inputs,
// so the key of a step never depends on inputs of later steps.
func (r *Recipe) LayerKeys(ctx context.Context, root string) ([]LayerKey, error) {
	filter, err := LoadIgnore(root)
	if err != nil {
		return nil, err
	}

	keys := make([]LayerKey, 0, len(r.steps))
	prev := ""
	for _, s := range r.steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("compute layer keys: %w", err)
		}

		inputs, err := hashInputs(root, s.Inputs, filter)
		if err != nil {
			return nil, fmt.Errorf("%s step: %w", s.Kind, err)
		}

		h := sha256.New()
		fmt.Fprintf(h, "%s\n%s\n%s", prev, s.Instruction, inputs)
		prev = hex.EncodeToString(h.Sum(nil))

		keys = append(keys, LayerKey{Kind: s.Kind, Instruction: s.Instruction, Key: prev})
	}
	return keys, nil
}

func hashInputs(root string, inputs []string, filter *Ignore) (string, error) {
	if len(inputs) == 0 {
		return "", nil
	}
	h := sha256.New()
	for _, in := range inputs {
		if filepath.IsAbs(in) {
			sum, err := CalculateFileHash(in)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(h, "%s:%s\n", filepath.Base(in), sum)
			continue
		}
		sum, err := hashTree(root, in, filter)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s:%s\n", in, sum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashTree hashes the file or directory rel under root, skipping ignored
// entries. Directory entries are folded in lexical order with their
// relative paths and modes.
func hashTree(root, rel string, filter *Ignore) (string, error) {
	start := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(start)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return CalculateFileHash(start)
	}

	type entry struct{ path, line string }
	var entries []entry
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if p != start && filter.Matches(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		sum := ""
		if fi.Mode().IsRegular() {
			if sum, err = CalculateFileHash(p); err != nil {
				return err
			}
		}
		entries = append(entries, entry{path: relPath, line: fmt.Sprintf("%s:%o:%s", relPath, fi.Mode().Perm(), sum)})
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateFileHash calculates the SHA-256 of a file's contents.
func CalculateFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
