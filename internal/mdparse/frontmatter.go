// Package mdparse extracts frontmatter, title, tags, and a stripped
// search-plain-text rendering from a Markdown document body (§4.C).
package mdparse

import (
	"strings"

	"github.com/adrg/frontmatter"
)

// Extracted holds everything derived from a document body.
type Extracted struct {
	Frontmatter     map[string]any
	Title           string
	Tags            []string
	StrippedContent string
}

// Parse extracts frontmatter, title, tags and stripped content from raw.
// Frontmatter parse failures are not fatal: the whole body is treated as
// content with empty frontmatter, per §4.C.
//
// Frontmatter is parsed straight into a map so every key the author wrote —
// not just title/tags — survives into Document.Frontmatter (§3); title and
// tags are then derived from that same map rather than a separate typed
// struct.
func Parse(raw string) Extracted {
	rest := raw
	fm := map[string]any{}

	if looksFenced(raw) {
		body, err := frontmatter.Parse(strings.NewReader(raw), &fm)
		if err == nil {
			rest = string(body)
		} else {
			fm = map[string]any{}
		}
	}

	title := deriveTitle(fm, rest)
	tags := deriveTags(fm, rest)
	stripped := StripMarkdown(rest)

	return Extracted{
		Frontmatter:     fm,
		Title:           title,
		Tags:            tags,
		StrippedContent: stripped,
	}
}

// looksFenced reports whether raw opens with a "---" YAML frontmatter fence.
func looksFenced(raw string) bool {
	trimmed := strings.TrimLeft(raw, "﻿")
	return strings.HasPrefix(trimmed, "---\n") || trimmed == "---" || strings.HasPrefix(trimmed, "---\r\n")
}

// deriveTitle prefers a string-valued frontmatter "title", else the first
// "# " heading line, else "" (absent).
func deriveTitle(fm map[string]any, body string) string {
	if t, ok := fm["title"].(string); ok {
		t = strings.TrimSpace(t)
		if t != "" {
			return t
		}
	}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
