package misc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyConfigTemplate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "config.example.yaml")
	if err := os.WriteFile(src, []byte("api-base-url: https://api.example.com\n"), 0o600); err != nil {
		t.Fatalf("write src: %v", err)
	}
	dst := filepath.Join(dir, "nested", "config.yaml")

	if err := CopyConfigTemplate(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "api-base-url: https://api.example.com\n" {
		t.Fatalf("dst = %q, %v", data, err)
	}

	if err = CopyConfigTemplate(src, dst); !errors.Is(err, ErrConfigExists) {
		t.Fatalf("second copy err = %v, want ErrConfigExists", err)
	}
}

func TestCopyConfigTemplateMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyConfigTemplate(filepath.Join(dir, "missing"), filepath.Join(dir, "out.yaml")); err == nil {
		t.Fatal("expected error for missing source")
	}
}
