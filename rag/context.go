package rag

import (
	"fmt"
	"strings"
)

// BuildContext renders a retrieval result into the single structured text
// block handed to the language model. It is a pure function of its inputs:
// entities first, then relations, then passages in ranked order. Sections
// with zero items are omitted entirely.
func BuildContext(passages []ScoredPassage, entities []ScoredEntity, relations []ScoredRelation) string {
	var sections []string

	if len(entities) > 0 {
		var b strings.Builder
		b.WriteString("Entities:\n")
		for _, e := range entities {
			b.WriteString("- ")
			b.WriteString(e.Name)
			if e.Type != "" {
				fmt.Fprintf(&b, " (%s)", e.Type)
			}
			if e.Description != "" {
				b.WriteString(": ")
				b.WriteString(e.Description)
			}
			b.WriteByte('\n')
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if len(relations) > 0 {
		var b strings.Builder
		b.WriteString("Relations:\n")
		for _, r := range relations {
			fmt.Fprintf(&b, "- %s → %s → %s", r.SourceEntityID, r.Type, r.TargetEntityID)
			if r.Description != "" {
				b.WriteString(": ")
				b.WriteString(r.Description)
			}
			b.WriteByte('\n')
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if len(passages) > 0 {
		var b strings.Builder
		b.WriteString("Passages:\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "Source %d (score %.3f):\n%s\n", i+1, p.Score, p.Content)
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	return strings.Join(sections, "\n\n")
}
