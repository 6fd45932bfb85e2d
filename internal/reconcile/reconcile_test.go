package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/derezo/docstore/internal/docengine"
	"github.com/derezo/docstore/internal/fsstore"
	"github.com/derezo/docstore/internal/store"
	"github.com/derezo/docstore/internal/sync"
)

func TestRunOnceSyncsNewDiskFileAndRemovesOrphanRow(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	u := &store.User{Email: "a@example.com", Role: store.RoleUser, PasswordHash: "x", IsActive: true}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := &store.Vault{UserID: u.ID, Name: "Notes", Slug: "notes"}
	if err := db.CreateVault(v); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}

	dataDir := t.TempDir()
	root := fsstore.VaultRoot(dataDir, u.ID, v.Slug)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir vault root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.md"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write a.md: %v", err)
	}

	orphan := &store.Document{VaultID: v.ID, Path: "orphan.md", ContentHash: "deadbeef", SizeBytes: 3}
	if _, _, err := db.UpsertDocument(orphan); err != nil {
		t.Fatalf("upsert orphan: %v", err)
	}

	coord := sync.New(time.Second, 10*time.Millisecond)
	engine := docengine.New(db, dataDir, coord)
	r := New(dataDir, db, engine, time.Hour, zerolog.Nop())

	r.RunOnce(context.Background())

	if _, err := db.GetDocument(v.ID, "a.md"); err != nil {
		t.Fatalf("expected a.md to be synced into the database: %v", err)
	}
	if _, err := db.GetDocument(v.ID, "orphan.md"); err == nil {
		t.Fatalf("expected orphan.md row to be removed")
	}
}

func TestReconcileVaultOnlyCountsRealSyncs(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	u := &store.User{Email: "b@example.com", Role: store.RoleUser, PasswordHash: "x", IsActive: true}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := &store.Vault{UserID: u.ID, Name: "Notes", Slug: "notes"}
	if err := db.CreateVault(v); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}

	dataDir := t.TempDir()
	root := fsstore.VaultRoot(dataDir, u.ID, v.Slug)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir vault root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.md"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write a.md: %v", err)
	}

	coord := sync.New(time.Second, 10*time.Millisecond)
	engine := docengine.New(db, dataDir, coord)
	r := New(dataDir, db, engine, time.Hour, zerolog.Nop())

	synced, _, err := r.reconcileVault(u, v)
	if err != nil {
		t.Fatalf("reconcileVault (first pass): %v", err)
	}
	if synced != 1 {
		t.Fatalf("first pass synced = %d, want 1", synced)
	}

	synced, _, err = r.reconcileVault(u, v)
	if err != nil {
		t.Fatalf("reconcileVault (second pass): %v", err)
	}
	if synced != 0 {
		t.Fatalf("second pass synced = %d, want 0 (no disk changes since first pass)", synced)
	}
}
