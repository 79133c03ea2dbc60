package chunking

import (
	"strings"
	"testing"
)

func TestSplitTextByHeadings(t *testing.T) {
	text := "# Intro\nSome intro text here.\n\n# Details\nMore detailed text follows in this section."
	out := SplitText(text, Params{MinTokens: 1, MaxTokens: 480})
	if len(out) != 2 {
		t.Fatalf("expected one chunk per heading section, got %d: %+v", len(out), out)
	}
	if out[0].HeadingPath != "Intro" || out[1].HeadingPath != "Details" {
		t.Fatalf("unexpected heading paths: %+v", out)
	}
}

func TestSplitTextSplitsOversizedSectionBySentence(t *testing.T) {
	sentence := func() string {
		var b strings.Builder
		for i := 0; i < 45; i++ {
			b.WriteString("word ")
		}
		return strings.TrimSpace(b.String())
	}()
	// Each sentence alone is ~60 tokens; the two together (~120) exceed the
	// 100-token bound, forcing a sentence-level split within one paragraph.
	text := "# Section\n" + sentence + ". " + sentence + "."
	out := SplitText(text, Params{MinTokens: 1, MaxTokens: 100})
	if len(out) != 2 {
		t.Fatalf("expected the oversized paragraph to split at a sentence boundary, got %d: %+v", len(out), out)
	}
	for _, c := range out {
		if estimateTokens(c.Text) > 100 {
			t.Fatalf("chunk exceeds MaxTokens: %d tokens in %q", estimateTokens(c.Text), c.Text)
		}
	}
}

func TestSplitTextMergesUndersizedTrailingChunk(t *testing.T) {
	text := "# Section\nA reasonably sized first paragraph with enough words in it to pass the minimum token bound easily.\n\nshort"
	out := SplitText(text, Params{MinTokens: 5, MaxTokens: 480})
	if len(out) != 1 {
		t.Fatalf("expected the short trailing paragraph to be merged in, got %d: %+v", len(out), out)
	}
	if !strings.Contains(out[0].Text, "short") {
		t.Fatalf("expected merged text to retain the short paragraph, got %q", out[0].Text)
	}
}

func TestSplitPagesTagsPageNumberInHeadingPath(t *testing.T) {
	pages := []string{"# Chapter 1\nPage one content.", "Untitled page two content with no heading."}
	out := SplitPages(pages, Params{MinTokens: 1, MaxTokens: 480})
	if len(out) != 2 {
		t.Fatalf("expected one chunk per page, got %d: %+v", len(out), out)
	}
	if out[0].HeadingPath != "page 1 / Chapter 1" {
		t.Fatalf("unexpected heading path for page 1: %q", out[0].HeadingPath)
	}
	if out[1].HeadingPath != "page 2" {
		t.Fatalf("unexpected heading path for page 2: %q", out[1].HeadingPath)
	}
}
