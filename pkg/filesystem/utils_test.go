package filesystem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDirectoryExists(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		filePath string
		checkDir string
	}{
		{
			name:     "current directory",
			filePath: "test.txt",
		},
		{
			name:     "single directory",
			filePath: filepath.Join(tempDir, "newdir", "test.txt"),
			checkDir: filepath.Join(tempDir, "newdir"),
		},
		{
			name:     "nested directories",
			filePath: filepath.Join(tempDir, "level1", "level2", "level3", "test.txt"),
			checkDir: filepath.Join(tempDir, "level1", "level2", "level3"),
		},
		{
			name:     "directory already exists",
			filePath: filepath.Join(tempDir, "test.txt"),
			checkDir: tempDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := EnsureDirectoryExists(tt.filePath); err != nil {
				t.Fatalf("EnsureDirectoryExists(%q) error = %v", tt.filePath, err)
			}

			if tt.checkDir == "" {
				return
			}
			info, err := os.Stat(tt.checkDir)
			if err != nil {
				t.Fatalf("directory %q was not created: %v", tt.checkDir, err)
			}
			if !info.IsDir() {
				t.Errorf("%q is not a directory", tt.checkDir)
			}
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "state", "sent_ids.json")

	if err := WriteFileAtomic(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "second" {
		t.Errorf("file content = %q, want %q", data, "second")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file in directory, found %d entries", len(entries))
	}
}

func TestGetDefaultPath(t *testing.T) {
	path, err := GetDefaultPath("config.yaml")
	if err != nil {
		t.Fatalf("GetDefaultPath() error = %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("GetDefaultPath() = %q, want an absolute path", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetDefaultPath() = %q, want it to end in config.yaml", path)
	}
}
