package pathsafe

import (
	"testing"

	"github.com/derezo/docstore/internal/dberr"
)

func TestValidateRelPathAccepts(t *testing.T) {
	for _, p := range []string{"a.md", "a/b/c.md", "a-b_c.md"} {
		if err := ValidateRelPath(p); err != nil {
			t.Errorf("ValidateRelPath(%q) = %v, want nil", p, err)
		}
	}
}

func TestValidateRelPathRejectsTraversal(t *testing.T) {
	for _, p := range []string{"../x.md", "a/../../x.md", "a/..", "..", "a\\b.md", "a\x00b.md"} {
		err := ValidateRelPath(p)
		if err == nil {
			t.Errorf("ValidateRelPath(%q) = nil, want error", p)
			continue
		}
		k := dberr.KindOf(err)
		if k != dberr.PathTraversal && k != dberr.Validation {
			t.Errorf("ValidateRelPath(%q) kind = %v", p, k)
		}
	}
}

func TestValidateRelPathRejectsMalformed(t *testing.T) {
	for _, p := range []string{"", "/a.md", "a.md/", "a//b.md"} {
		if err := ValidateRelPath(p); err == nil {
			t.Errorf("ValidateRelPath(%q) = nil, want error", p)
		}
	}
}

func TestDeriveSlug(t *testing.T) {
	cases := map[string]string{
		"My Vault!!":    "my-vault",
		"  spaced out ": "spaced-out",
		"already-ok":    "already-ok",
		"Ünïcödé Name":  "n-c-d-name",
	}
	for in, want := range cases {
		if got := DeriveSlug(in); got != want {
			t.Errorf("DeriveSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoinPrefix(t *testing.T) {
	got := JoinPrefix("old", "new", "old/sub/file.md")
	if got != "new/sub/file.md" {
		t.Errorf("JoinPrefix = %q, want %q", got, "new/sub/file.md")
	}
}
