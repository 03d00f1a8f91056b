// Package segment splits regulation text into bounded units for
// extraction. Splitting prefers semantic break points: legal section
// markers first, then blank-line paragraphs, then sentences.
package segment

import (
	"regexp"
	"strings"
)

var (
	sectionRe   = regexp.MustCompile(`\n\s*§\s*\d+`)
	blankLineRe = regexp.MustCompile(`\n\s*\n`)
)

// Split returns an ordered sequence of trimmed, non-empty units of at
// most maxChars each. A single sentence longer than maxChars is emitted
// as-is rather than truncated, so the limit is a target, not a hard
// invariant.
func Split(text string, maxChars int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var units []string
	for _, section := range accumulate(splitSections(text), maxChars, "\n") {
		if len(section) <= maxChars {
			units = append(units, section)
			continue
		}
		for _, para := range accumulate(blankLineRe.Split(section, -1), maxChars, "\n\n") {
			if len(para) <= maxChars {
				units = append(units, para)
				continue
			}
			units = append(units, accumulate(splitSentences(para), maxChars, " ")...)
		}
	}

	out := units[:0]
	for _, u := range units {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// splitSections cuts the text at legal section headers (§ N). Each piece
// starts at a header and runs to the next one, so a header never
// separates from its body.
func splitSections(text string) []string {
	starts := sectionRe.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return []string{text}
	}

	var pieces []string
	prev := 0
	for _, loc := range starts {
		if loc[0] > prev {
			pieces = append(pieces, text[prev:loc[0]])
		}
		prev = loc[0]
	}
	pieces = append(pieces, text[prev:])
	return pieces
}

// accumulate greedily joins parts into units no longer than maxChars.
// A part that alone exceeds the limit becomes its own unit and is left
// for the next, finer splitting stage.
func accumulate(parts []string, maxChars int, sep string) []string {
	var units []string
	var current strings.Builder

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(sep)+len(part) > maxChars {
			units = append(units, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
	}
	if current.Len() > 0 {
		units = append(units, current.String())
	}
	return units
}

// splitSentences cuts at sentence terminators followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && i+1 < len(text) && isSpace(text[i+1]) {
			sentences = append(sentences, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
