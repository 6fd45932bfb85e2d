package mdparse

import (
	"regexp"
	"strings"
)

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```|~~~.*?~~~")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	imageRe      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	refLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\[[^\]]*\]`)
	headingRe    = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+`)
	strikeRe     = regexp.MustCompile(`~~([^~]+)~~`)
	hruleRe      = regexp.MustCompile(`(?m)^[ \t]*([-*_])(?:[ \t]*\1){2,}[ \t]*$`)
	blockquoteRe = regexp.MustCompile(`(?m)^[ \t]{0,3}>[ \t]?`)
	listBulletRe = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+[.)])[ \t]+`)
	htmlTagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
	multiBlankRe = regexp.MustCompile(`\n{3,}`)

	emphasis3Re = regexp.MustCompile(`\*\*\*([^*]+)\*\*\*|___([^_]+)___`)
	emphasis2Re = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	emphasis1Re = regexp.MustCompile(`\*([^*]+)\*|_([^_]+)_`)
)

// StripMarkdown removes Markdown syntax from body, leaving plain text
// suitable for a search index, per §4.C. Order matters: fenced code blocks
// are removed and inline code is unwrapped to its text before the other
// transforms, so code contents never produce false emphasis matches. Raw
// HTML tags are removed last.
func StripMarkdown(body string) string {
	s := body

	s = fencedCodeRe.ReplaceAllString(s, "")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = imageRe.ReplaceAllString(s, "$1")
	s = refLinkRe.ReplaceAllString(s, "$1")
	s = linkRe.ReplaceAllString(s, "$1")
	s = headingRe.ReplaceAllString(s, "")
	s = emphasis3Re.ReplaceAllString(s, "$1$2")
	s = emphasis2Re.ReplaceAllString(s, "$1$2")
	s = emphasis1Re.ReplaceAllString(s, "$1$2")
	s = strikeRe.ReplaceAllString(s, "$1")
	s = hruleRe.ReplaceAllString(s, "")
	s = blockquoteRe.ReplaceAllString(s, "")
	s = listBulletRe.ReplaceAllString(s, "")
	s = htmlTagRe.ReplaceAllString(s, "")

	s = multiBlankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
