package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTacticsSeedFileMissingPathIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.LoadTacticsSeedFile(""); err != nil {
		t.Fatalf("LoadTacticsSeedFile(\"\") = %v, want nil", err)
	}
	if err := s.LoadTacticsSeedFile(filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("LoadTacticsSeedFile(missing file) = %v, want nil", err)
	}
}

func TestLoadTacticsSeedFileSeedsNewTemplatesOnly(t *testing.T) {
	s := openTestStore(t)
	path := filepath.Join(t.TempDir(), "tactics-seed.yaml")
	contents := `
templates:
  - name: aggressive
    is_default: true
    tactics:
      max_duration_minutes: 15
  - name: lenient
    tactics:
      max_duration_minutes: 60
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := s.LoadTacticsSeedFile(path); err != nil {
		t.Fatalf("LoadTacticsSeedFile: %v", err)
	}

	templates, err := s.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("expected 2 seeded templates, got %d", len(templates))
	}

	// Re-running the seed must not duplicate existing names.
	if err := s.LoadTacticsSeedFile(path); err != nil {
		t.Fatalf("LoadTacticsSeedFile (second run): %v", err)
	}
	templates, err = s.ListTemplates()
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(templates) != 2 {
		t.Errorf("expected seeding to stay idempotent, got %d templates", len(templates))
	}
}
