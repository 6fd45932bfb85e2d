package mdparse

import (
	"reflect"
	"testing"
)

func TestParseNoFrontmatter(t *testing.T) {
	ex := Parse("# Hi\n\nhello")
	if ex.Title != "Hi" {
		t.Errorf("title = %q, want %q", ex.Title, "Hi")
	}
	if len(ex.Tags) != 0 {
		t.Errorf("tags = %v, want empty", ex.Tags)
	}
}

func TestParseFrontmatterTitleAndTags(t *testing.T) {
	raw := "---\ntitle: X\ntags: [go, rust]\n---\n#go body\n"
	ex := Parse(raw)
	if ex.Title != "X" {
		t.Errorf("title = %q, want %q", ex.Title, "X")
	}
	want := []string{"go", "rust"}
	if !reflect.DeepEqual(ex.Tags, want) {
		t.Errorf("tags = %v, want %v", ex.Tags, want)
	}
}

func TestParsePreservesExtraFrontmatterKeys(t *testing.T) {
	raw := "---\ntitle: X\nauthor: jane\naliases: [x, y]\n---\nbody\n"
	ex := Parse(raw)
	if ex.Frontmatter["author"] != "jane" {
		t.Errorf("author = %v, want jane", ex.Frontmatter["author"])
	}
	aliases, ok := ex.Frontmatter["aliases"].([]any)
	if !ok || len(aliases) != 2 {
		t.Errorf("aliases = %v, want a 2-element list", ex.Frontmatter["aliases"])
	}
}

func TestParseBadFrontmatterFallsBackToWholeBody(t *testing.T) {
	raw := "---\nnot: [valid: yaml: here\n---\nbody text"
	ex := Parse(raw)
	if ex.Frontmatter["title"] != nil {
		t.Errorf("expected empty frontmatter on parse error, got %v", ex.Frontmatter)
	}
}

func TestDeriveTagsDedupeSortLowercase(t *testing.T) {
	fm := map[string]any{"tags": []any{"Go", "GO"}}
	tags := deriveTags(fm, "hello #Rust world #rust again")
	want := []string{"go", "rust"}
	if !reflect.DeepEqual(tags, want) {
		t.Errorf("tags = %v, want %v", tags, want)
	}
}

func TestDeriveTagsIgnoresCodeBlocks(t *testing.T) {
	body := "```\n#notatag\n```\nreal #tag here"
	tags := deriveTags(map[string]any{}, body)
	want := []string{"tag"}
	if !reflect.DeepEqual(tags, want) {
		t.Errorf("tags = %v, want %v", tags, want)
	}
}

func TestStripMarkdown(t *testing.T) {
	in := "# Title\n\nSome **bold** and *em* text with a [link](http://x) and `code`.\n\n- item one\n- item two\n\n> quoted\n\n---\n"
	out := StripMarkdown(in)
	if out == "" {
		t.Fatal("expected non-empty stripped content")
	}
	for _, bad := range []string{"**", "# ", "](", "`", ">"} {
		if contains(out, bad) {
			t.Errorf("stripped content still contains %q: %q", bad, out)
		}
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (sub == "" || indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
