package store

import "testing"

func TestSearchReflectsDocumentWrittenAfterOpen(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	u := &User{Email: "a@example.com", Role: RoleUser, PasswordHash: "x", IsActive: true}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := &Vault{UserID: u.ID, Name: "Notes", Slug: "notes"}
	if err := db.CreateVault(v); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}

	d := &Document{
		VaultID:         v.ID,
		Path:            "zebra.md",
		Title:           "Zebra Crossing",
		ContentHash:     "abc",
		SizeBytes:       10,
		StrippedContent: "notes about zebra crossings",
	}
	if _, _, err := db.UpsertDocument(d); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	results, err := db.Search(v.ID, "zebra", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Document.Path != "zebra.md" {
		t.Fatalf("results = %+v, want zebra.md to be found immediately after upsert", results)
	}
}

func TestSearchNoLongerReturnsDeletedDocument(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	u := &User{Email: "b@example.com", Role: RoleUser, PasswordHash: "x", IsActive: true}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := &Vault{UserID: u.ID, Name: "Notes", Slug: "notes"}
	if err := db.CreateVault(v); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}

	d := &Document{
		VaultID:         v.ID,
		Path:            "giraffe.md",
		Title:           "Giraffe Notes",
		ContentHash:     "def",
		SizeBytes:       10,
		StrippedContent: "tall giraffe facts",
	}
	if _, _, err := db.UpsertDocument(d); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if err := db.DeleteDocument(v.ID, "giraffe.md"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	results, err := db.Search(v.ID, "giraffe", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v, want none after delete", results)
	}
}

func TestSearchReflectsUpdatedContent(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	u := &User{Email: "c@example.com", Role: RoleUser, PasswordHash: "x", IsActive: true}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v := &Vault{UserID: u.ID, Name: "Notes", Slug: "notes"}
	if err := db.CreateVault(v); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}

	d := &Document{
		VaultID:         v.ID,
		Path:            "note.md",
		Title:           "Original",
		ContentHash:     "one",
		SizeBytes:       10,
		StrippedContent: "first revision text",
	}
	if _, _, err := db.UpsertDocument(d); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	d.ContentHash = "two"
	d.StrippedContent = "second revision mentions ocelots"
	if _, _, err := db.UpsertDocument(d); err != nil {
		t.Fatalf("UpsertDocument (update): %v", err)
	}

	results, err := db.Search(v.ID, "ocelots", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want the updated revision to be searchable", results)
	}

	stale, err := db.Search(v.ID, "first", 10)
	if err != nil {
		t.Fatalf("Search (stale term): %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("results = %+v, want the superseded revision's text gone from the index", stale)
	}
}
