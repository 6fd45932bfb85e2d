package mdparse

import (
	"regexp"
	"sort"
	"strings"
)

// inlineTagRe matches "#tag" occurrences preceded by start-of-string or
// whitespace, per §4.C: (^|whitespace)#([A-Za-z][A-Za-z0-9_-]*).
var inlineTagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_-]*)`)

// deriveTags unions frontmatter array tags with inline #tag occurrences
// found in the body after code has been stripped, normalizes each to
// lowercase/trimmed, discards empties, and returns a sorted, deduplicated
// slice.
func deriveTags(fm map[string]any, body string) []string {
	set := map[string]struct{}{}

	if raw, ok := fm["tags"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				addTag(set, s)
			}
		}
	}

	codeStripped := removeCodeForTagScan(body)
	for _, m := range inlineTagRe.FindAllStringSubmatch(codeStripped, -1) {
		addTag(set, m[1])
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func addTag(set map[string]struct{}, raw string) {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return
	}
	set[t] = struct{}{}
}

// removeCodeForTagScan strips fenced code blocks and inline code spans so
// that "#include" in a code sample is never mistaken for a tag.
func removeCodeForTagScan(body string) string {
	body = fencedCodeRe.ReplaceAllString(body, "")
	body = inlineCodeRe.ReplaceAllString(body, "")
	return body
}
