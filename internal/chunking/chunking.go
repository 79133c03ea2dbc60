// Package chunking implements the recursive structural chunker for text and
// markdown attachments (§4.7): split on top-level headings, then
// paragraphs, then sentences, until each chunk is within [T_min, T_max]
// tokens, carrying the enclosing heading as context.
package chunking

import (
	"regexp"
	"strconv"
	"strings"
)

// Params bounds chunk size in the same word-count token proxy the
// Sessionizer uses (estimateTokens), so both stay consistent without a
// tokenizer dependency neither one needs.
type Params struct {
	MinTokens int
	MaxTokens int
}

// Chunk is one bounded textual slice with its enclosing heading path
// prepended, ready for embedding.
type Chunk struct {
	Text        string
	HeadingPath string
}

var headingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.*)$`)
var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+(\s+|$)`)

// SplitText applies the recursive structural split to one document's text.
func SplitText(text string, params Params) []Chunk {
	sections := splitHeadings(text)
	var out []Chunk
	for _, sec := range sections {
		out = append(out, splitSection(sec, params)...)
	}
	return out
}

type section struct {
	heading string
	body    string
}

// splitHeadings breaks text at top-level Markdown headings, keeping any
// content before the first heading under an empty heading.
func splitHeadings(text string) []section {
	locs := headingRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []section{{heading: "", body: text}}
	}

	var sections []section
	if locs[0][0] > 0 {
		sections = append(sections, section{heading: "", body: text[:locs[0][0]]})
	}
	for i, loc := range locs {
		heading := strings.TrimSpace(text[loc[4]:loc[5]])
		bodyStart := loc[1]
		bodyEnd := len(text)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		sections = append(sections, section{heading: heading, body: text[bodyStart:bodyEnd]})
	}
	return sections
}

// splitSection further splits a section's body into paragraphs, then
// sentences if a paragraph alone still exceeds MaxTokens, greedily packing
// consecutive units into chunks within [MinTokens, MaxTokens].
func splitSection(sec section, params Params) []Chunk {
	paragraphs := splitParagraphs(sec.body)
	var units []string
	for _, p := range paragraphs {
		if estimateTokens(p) <= params.MaxTokens {
			units = append(units, p)
			continue
		}
		units = append(units, splitSentences(p)...)
	}

	var out []Chunk
	var current strings.Builder
	currentTokens := 0
	flush := func() {
		text := strings.TrimSpace(current.String())
		if text == "" {
			return
		}
		out = append(out, Chunk{Text: text, HeadingPath: sec.heading})
		current.Reset()
		currentTokens = 0
	}

	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		t := estimateTokens(u)
		if currentTokens > 0 && currentTokens+t > params.MaxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(u)
		currentTokens += t
	}
	flush()

	return mergeUndersized(out, params.MinTokens)
}

// mergeUndersized folds any chunk below MinTokens into its predecessor
// (or successor, for a lone first chunk), so a trailing short paragraph
// doesn't become its own near-empty embedding.
func mergeUndersized(chunks []Chunk, minTokens int) []Chunk {
	if len(chunks) <= 1 {
		return chunks
	}
	var out []Chunk
	for _, c := range chunks {
		if len(out) > 0 && estimateTokens(c.Text) < minTokens {
			out[len(out)-1].Text = strings.TrimSpace(out[len(out)-1].Text + " " + c.Text)
			continue
		}
		out = append(out, c)
	}
	if len(out) > 1 && estimateTokens(out[0].Text) < minTokens {
		out[1].Text = strings.TrimSpace(out[0].Text + " " + out[1].Text)
		out = out[1:]
	}
	return out
}

func splitParagraphs(body string) []string {
	raw := strings.Split(body, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(paragraph string) []string {
	matches := sentenceRe.FindAllString(paragraph, -1)
	if len(matches) == 0 {
		return []string{paragraph}
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// SplitPages chunks a PDF's already-extracted per-page text (§4.7 "extract
// text per page; chunk per the text rule"), tagging each chunk with its
// originating page in the heading path so context survives the split.
func SplitPages(pages []string, params Params) []Chunk {
	var out []Chunk
	for i, page := range pages {
		for _, c := range SplitText(page, params) {
			if c.HeadingPath == "" {
				c.HeadingPath = pageLabel(i + 1)
			} else {
				c.HeadingPath = pageLabel(i+1) + " / " + c.HeadingPath
			}
			out = append(out, c)
		}
	}
	return out
}

func pageLabel(n int) string {
	return "page " + strconv.Itoa(n)
}

// estimateTokens mirrors the Sessionizer's cheap word-count proxy (§4.5), so
// chat and document token budgets are measured the same way.
func estimateTokens(s string) int {
	fields := strings.Fields(s)
	return len(fields) + len(fields)/3
}
