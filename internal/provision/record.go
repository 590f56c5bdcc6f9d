// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/appboot/appboot/internal/recipe"
)

// Record is the persisted outcome of a successful build.
type Record struct {
	Project   string            `json:"project"`
	Tag       string            `json:"tag"`
	BaseImage string            `json:"base_image"`
	Keys      []recipe.LayerKey `json:"keys"`
	BuiltAt   time.Time         `json:"built_at"`
}

// RecordPath returns the file that stores the record of project.
func RecordPath(cacheDir, project string) string {
	return filepath.Join(cacheDir, project+".json")
}

// LoadRecord reads the last recorded build of project. It returns nil
// without error when no build has been recorded.
func LoadRecord(cacheDir, project string) (*Record, error) {
	data, err := os.ReadFile(RecordPath(cacheDir, project))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read build record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode build record %s: %w", RecordPath(cacheDir, project), err)
	}
	return &rec, nil
}

// SaveRecord writes rec atomically under cacheDir.
func SaveRecord(cacheDir string, rec *Record) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode build record: %w", err)
	}

	tmp, err := os.CreateTemp(cacheDir, rec.Project+".*.tmp")
	if err != nil {
		return fmt.Errorf("create build record: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // No-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write build record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close build record: %w", err)
	}
	if err := os.Rename(tmp.Name(), RecordPath(cacheDir, rec.Project)); err != nil {
		return fmt.Errorf("commit build record: %w", err)
	}
	return nil
}
