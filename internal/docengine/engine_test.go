package docengine

import (
	"testing"
	"time"

	"github.com/derezo/docstore/internal/store"
	"github.com/derezo/docstore/internal/sync"
)

func newTestEngine(t *testing.T) (*Engine, *store.DB, *store.User, *store.Vault) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u := &store.User{Email: "a@example.com", Role: store.RoleUser, PasswordHash: "x", IsActive: true}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := &store.Vault{UserID: u.ID, Name: "Notes", Slug: "notes"}
	if err := db.CreateVault(v); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}

	dataDir := t.TempDir()
	coord := sync.New(time.Second, 10*time.Millisecond)
	return New(db, dataDir, coord), db, u, v
}

func TestPutCreatesDocumentAndVersion(t *testing.T) {
	e, _, u, v := newTestEngine(t)
	doc, changed, err := e.Put(u.ID, v.ID, "a.md", []byte("# Hello\n\nbody #tag1"), store.SourceAPI, u.ID)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !changed {
		t.Fatal("expected changed=true on first write")
	}
	if doc.Title != "Hello" {
		t.Errorf("title = %q, want Hello", doc.Title)
	}
	versions, err := e.GetVersions(u.ID, v.ID, "a.md")
	if err != nil {
		t.Fatalf("GetVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].VersionNum != 1 {
		t.Fatalf("versions = %+v, want one version numbered 1", versions)
	}
}

func TestPutShortCircuitsOnUnchangedHash(t *testing.T) {
	e, _, u, v := newTestEngine(t)
	content := []byte("same content")
	if _, changed, err := e.Put(u.ID, v.ID, "a.md", content, store.SourceAPI, u.ID); err != nil {
		t.Fatalf("first Put: %v", err)
	} else if !changed {
		t.Fatal("expected changed=true on first write")
	}
	if _, changed, err := e.Put(u.ID, v.ID, "a.md", content, store.SourceWebDAV, u.ID); err != nil {
		t.Fatalf("second Put: %v", err)
	} else if changed {
		t.Fatal("expected changed=false when content hash is unchanged")
	}
	versions, err := e.GetVersions(u.ID, v.ID, "a.md")
	if err != nil {
		t.Fatalf("GetVersions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("versions = %d, want 1 (no-op replay)", len(versions))
	}
}

func TestMoveRewritesDocumentPath(t *testing.T) {
	e, _, u, v := newTestEngine(t)
	if _, _, err := e.Put(u.ID, v.ID, "a.md", []byte("x"), store.SourceAPI, u.ID); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Move(u.ID, v.ID, "a.md", "b/a.md", false); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := e.db.GetDocument(v.ID, "a.md"); err == nil {
		t.Fatal("old path should no longer resolve to a document")
	}
	doc, err := e.db.GetDocument(v.ID, "b/a.md")
	if err != nil {
		t.Fatalf("GetDocument(new path): %v", err)
	}
	if doc.Path != "b/a.md" {
		t.Errorf("path = %q", doc.Path)
	}
}

func TestCopyCreatesFreshVersionChain(t *testing.T) {
	e, _, u, v := newTestEngine(t)
	if _, _, err := e.Put(u.ID, v.ID, "a.md", []byte("x"), store.SourceAPI, u.ID); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, _, err := e.Put(u.ID, v.ID, "a.md", []byte("y"), store.SourceAPI, u.ID); err != nil {
		t.Fatalf("Put update: %v", err)
	}
	if err := e.Copy(u.ID, v.ID, "a.md", "copy.md", store.SourceAPI, u.ID); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	versions, err := e.GetVersions(u.ID, v.ID, "copy.md")
	if err != nil {
		t.Fatalf("GetVersions(copy): %v", err)
	}
	if len(versions) != 1 || versions[0].VersionNum != 1 {
		t.Fatalf("copy versions = %+v, want fresh chain starting at 1", versions)
	}
}

func TestRemoveDirectoryCascadesDocuments(t *testing.T) {
	e, _, u, v := newTestEngine(t)
	if _, _, err := e.Put(u.ID, v.ID, "dir/a.md", []byte("x"), store.SourceAPI, u.ID); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, _, err := e.Put(u.ID, v.ID, "dir/b.md", []byte("y"), store.SourceAPI, u.ID); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Remove(u.ID, v.ID, "dir"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	docs, err := e.List(u.ID, v.ID, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("docs = %+v, want none after directory remove", docs)
	}
}

func TestCreateVaultDisambiguatesSlug(t *testing.T) {
	e, _, u, _ := newTestEngine(t)
	v1, err := e.CreateVault(u.ID, "Notes", "")
	if err != nil {
		t.Fatalf("CreateVault: %v", err)
	}
	v2, err := e.CreateVault(u.ID, "Notes", "")
	if err != nil {
		t.Fatalf("CreateVault (collision): %v", err)
	}
	if v1.Slug == v2.Slug {
		t.Fatalf("expected distinct slugs, got %q and %q", v1.Slug, v2.Slug)
	}
}

func TestDeleteVaultRemovesDocumentsAndDisk(t *testing.T) {
	e, db, u, _ := newTestEngine(t)
	v, err := e.CreateVault(u.ID, "Scratch", "")
	if err != nil {
		t.Fatalf("CreateVault: %v", err)
	}
	if _, _, err := e.Put(u.ID, v.ID, "a.md", []byte("x"), store.SourceAPI, u.ID); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.DeleteVault(u.ID, v.ID); err != nil {
		t.Fatalf("DeleteVault: %v", err)
	}
	if _, err := db.GetVaultByID(v.ID); err == nil {
		t.Fatal("expected vault row to be gone")
	}
}

func TestTreeFoldsPathsHierarchically(t *testing.T) {
	e, _, u, v := newTestEngine(t)
	for _, p := range []string{"a.md", "dir/b.md", "dir/sub/c.md"} {
		if _, _, err := e.Put(u.ID, v.ID, p, []byte(p), store.SourceAPI, u.ID); err != nil {
			t.Fatalf("Put(%s): %v", p, err)
		}
	}
	tree, err := e.Tree(u.ID, v.ID)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("root children = %d, want 2 (a.md, dir)", len(tree.Children))
	}
}
