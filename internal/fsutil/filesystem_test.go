package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

var (
	_ FileSystem = OSFileSystem{}
	_ FileSystem = (*MemoryFileSystem)(nil)
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_ReadFile(t *testing.T) {
	fs := OSFileSystem{}

	data, err := fs.ReadFile("filesystem.go")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if len(data) == 0 {
		t.Error("expected non-empty file content")
	}
}

func TestOSFileSystem_WriteRenameRead(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()

	tmpPath := filepath.Join(dir, "config.json.tmp")
	finalPath := filepath.Join(dir, "config.json")

	if err := fs.WriteFile(tmpPath, []byte(`{"a":1}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fs.Rename(tmpPath, finalPath); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	if fs.Exists(tmpPath) {
		t.Error("expected temp file to be gone after rename")
	}

	data, err := fs.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("expected renamed content, got %q", data)
	}
}

func TestOSFileSystem_ReadDir(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()

	for _, name := range []string{"b.bin", "a.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	entries, err := fs.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name() != "a.bin" || entries[1].Name() != "b.bin" {
		t.Errorf("expected sorted entries, got %s, %s", entries[0].Name(), entries[1].Name())
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	err := mfs.WriteFile("/test.txt", testData, 0644)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}
}

func TestMemoryFileSystem_ReadFileCopies(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/copy.txt", []byte("abc"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/copy.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	data[0] = 'z'

	again, err := mfs.ReadFile("/copy.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(again) != "abc" {
		t.Errorf("stored content mutated through returned slice: %q", again)
	}
}

func TestMemoryFileSystem_Open(t *testing.T) {
	mfs := NewMemoryFileSystem()

	err := mfs.WriteFile("/opentest.txt", []byte("open me"), 0644)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	f, err := mfs.Open("/opentest.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if string(data) != "open me" {
		t.Errorf("expected 'open me', got %q", data)
	}
}

func TestMemoryFileSystem_OpenNonExistent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	_, err := mfs.Open("/nonexistent.txt")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestMemoryFileSystem_Stat(t *testing.T) {
	mfs := NewMemoryFileSystem()

	err := mfs.WriteFile("/stattest.txt", []byte("stat content"), 0600)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	info, err := mfs.Stat("/stattest.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	if info.Name() != "stattest.txt" {
		t.Errorf("expected name stattest.txt, got %s", info.Name())
	}
	if info.Size() != int64(len("stat content")) {
		t.Errorf("expected size %d, got %d", len("stat content"), info.Size())
	}
	if info.Mode() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode())
	}
	if info.ModTime().IsZero() {
		t.Error("expected non-zero mod time")
	}
	if info.IsDir() {
		t.Error("expected file, got directory")
	}
}

func TestMemoryFileSystem_StatNonExistent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	_, err := mfs.Stat("/nonexistent.txt")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/cfg.json.tmp", []byte("v2"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := mfs.WriteFile("/cfg.json", []byte("v1"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := mfs.Rename("/cfg.json.tmp", "/cfg.json"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	if mfs.Exists("/cfg.json.tmp") {
		t.Error("expected temp file to be gone after rename")
	}

	data, err := mfs.ReadFile("/cfg.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("expected rename to replace existing file, got %q", data)
	}
}

func TestMemoryFileSystem_RenameNonExistent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.Rename("/missing", "/dest"); err == nil {
		t.Error("expected error renaming non-existent file")
	}
}

func TestMemoryFileSystem_ReadDir(t *testing.T) {
	mfs := NewMemoryFileSystem()

	files := []string{"/captures/b.bin", "/captures/a.bin"}
	for _, name := range files {
		if err := mfs.WriteFile(name, []byte("data"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	if err := mfs.MkdirAll("/captures/archive", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	// A file elsewhere must not show up
	if err := mfs.WriteFile("/other/c.bin", []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	entries, err := mfs.ReadDir("/captures")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Name() != "a.bin" || entries[1].Name() != "archive" || entries[2].Name() != "b.bin" {
		t.Errorf("unexpected entry order: %s, %s, %s",
			entries[0].Name(), entries[1].Name(), entries[2].Name())
	}
	if entries[0].IsDir() {
		t.Error("a.bin reported as directory")
	}
	if !entries[1].IsDir() {
		t.Error("archive reported as file")
	}

	info, err := entries[0].Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("expected size 4, got %d", info.Size())
	}
}

func TestMemoryFileSystem_ReadDirEmpty(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.MkdirAll("/empty", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	entries, err := mfs.ReadDir("/empty")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty listing, got %d entries", len(entries))
	}
}

func TestMemoryFileSystem_ReadDirNonExistent(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.ReadDir("/nowhere"); err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.MkdirAll("/a/b/c", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		if !mfs.Exists(dir) {
			t.Errorf("expected %s to exist", dir)
		}
	}

	info, err := mfs.Stat("/a/b")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}
}

func TestMemoryFileSystem_Exists(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if mfs.Exists("/nope") {
		t.Error("expected missing path to not exist")
	}

	if err := mfs.WriteFile("/yes.txt", []byte("y"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !mfs.Exists("/yes.txt") {
		t.Error("expected written file to exist")
	}
}
