// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestValues_OrderedAndComplete(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != len(issues) {
		t.Fatalf("Values() returned %d entries, want %d", len(values), len(issues))
	}
	for i, v := range values {
		if v.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, v.Id(), i+1)
		}
	}
}

func TestAllIssuesHaveContent(t *testing.T) {
	t.Parallel()

	for _, is := range Values() {
		if strings.TrimSpace(string(is.MarkdownMsg())) == "" {
			t.Errorf("issue %d has empty markdown", is.Id())
		}
		if is.Title() == "" {
			t.Errorf("issue %d has empty title", is.Id())
		}
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	if Get(EntrypointNotFoundId) == nil {
		t.Fatal("Get(EntrypointNotFoundId) returned nil")
	}
	if Get(Id(999)) != nil {
		t.Error("Get(999) should return nil")
	}
}

func TestIssue_Markdown_SeeAlso(t *testing.T) {
	t.Parallel()

	md := Get(PermissionDeniedId).Markdown()
	if !strings.Contains(md, "## See also") {
		t.Errorf("expected See also section:\n%s", md)
	}

	md = Get(EntrypointNotFoundId).Markdown()
	if strings.Contains(md, "See also") {
		t.Errorf("entry without links should not have See also:\n%s", md)
	}
}

func TestIssue_ExtLinksIsCopy(t *testing.T) {
	t.Parallel()

	is := Get(PackageInstallFailedId)
	links := is.ExtLinks()
	links[0] = "mutated"
	if is.ExtLinks()[0] == "mutated" {
		t.Error("ExtLinks() must return a copy")
	}
}

func TestAllIssuesAreRenderable(t *testing.T) {
	t.Parallel()

	for _, is := range Values() {
		out, err := is.Render("notty")
		if err != nil {
			t.Errorf("Render(%d) error = %v", is.Id(), err)
			continue
		}
		if !strings.Contains(strings.ToLower(out), strings.ToLower(strings.Fields(is.Title())[0])) {
			t.Errorf("Render(%d) output does not mention its title word:\n%s", is.Id(), out)
		}
	}
}
