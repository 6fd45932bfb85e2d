package fsstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/derezo/docstore/internal/dberr"
)

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	if err := WriteFile(root, "a/b.md", []byte("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(root, "a/b.md")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}

func TestWriteFileNoLeftoverTemp(t *testing.T) {
	root := t.TempDir()
	if err := WriteFile(root, "x.md", []byte("A")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if IsTempFile(e.Name()) {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestPathTraversalRejected(t *testing.T) {
	root := t.TempDir()
	for _, bad := range []string{"../escape.md", "a/../../escape.md", "a/..\\b.md"} {
		if err := WriteFile(root, bad, []byte("x")); err == nil {
			t.Errorf("WriteFile(%q) should have failed", bad)
		} else if dberr.KindOf(err) != dberr.PathTraversal && dberr.KindOf(err) != dberr.Validation {
			t.Errorf("WriteFile(%q) kind = %v, want PathTraversal/Validation", bad, dberr.KindOf(err))
		}
	}
}

func TestDeleteFilePrunesEmptyParents(t *testing.T) {
	root := t.TempDir()
	if err := WriteFile(root, "a/b/c.md", []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := DeleteFile(root, "a/b/c.md"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a")); !os.IsNotExist(err) {
		t.Errorf("expected empty parent 'a' to be pruned, stat err = %v", err)
	}
}

func TestMoveFile(t *testing.T) {
	root := t.TempDir()
	if err := WriteFile(root, "old.md", []byte("content")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := MoveFile(root, "old.md", "dir/new.md"); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if kind, _ := PathExists(root, "old.md"); kind != None {
		t.Errorf("old.md should no longer exist")
	}
	got, err := ReadFile(root, "dir/new.md")
	if err != nil || string(got) != "content" {
		t.Errorf("ReadFile(dir/new.md) = %q, %v", got, err)
	}
}

func TestWalkMarkdownSkipsDotDirs(t *testing.T) {
	root := t.TempDir()
	WriteFile(root, "a.md", []byte("x"))
	WriteFile(root, "notes/b.md", []byte("x"))
	WriteFile(root, ".obsidian/config.md", []byte("x"))
	WriteFile(root, ".hidden/c.md", []byte("x"))

	files, err := WalkMarkdown(root, map[string]bool{".obsidian": true})
	if err != nil {
		t.Fatalf("WalkMarkdown: %v", err)
	}
	want := map[string]bool{"a.md": true, "notes/b.md": true, ".obsidian/config.md": true}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want keys of %v", files, want)
	}
	for _, f := range files {
		if !want[f] {
			t.Errorf("unexpected file in walk: %s", f)
		}
	}
}
