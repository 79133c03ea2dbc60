package sessionizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/embedder"
)

// Params configures the sessionizing heuristic (§4.5, §6).
type Params struct {
	TimeGap                  time.Duration
	MaxTokens                int
	SemanticRefineThreshold  int
	SemanticPercentile       float64
	SemanticMinSubSession    int
	EnableSemanticRefinement bool
}

func DefaultParams() Params {
	return Params{
		TimeGap:                 15 * time.Minute,
		MaxTokens:               480,
		SemanticRefineThreshold: 20,
		SemanticPercentile:      5,
		SemanticMinSubSession:   2,
	}
}

// Candidate is a proposed session: a contiguous message span plus the
// canonical text the Embedder should embed for it.
type Candidate struct {
	StartMessageID string
	EndMessageID   string
	MessageIDs     []string
	StartTime      time.Time
	EndTime        time.Time
	MessageCount   int
}

// Sessionize groups a time-ordered, single-channel message stream into
// conversation sessions per the temporal+reply heuristic, then optionally
// applies semantic refinement. It is a pure function of (messages, params,
// channelName): property P5 requires the same inputs always produce the
// same set of (start_id, end_id) pairs.
//
// channelName is used only for the enrichment header text, not for
// grouping decisions.
func Sessionize(ctx context.Context, messages []domain.Message, channelName string, params Params, em embedder.Embedder) ([]Candidate, error) {
	blocks := temporalSplit(messages, params)

	var refined [][]domain.Message
	for _, block := range blocks {
		if params.EnableSemanticRefinement && em != nil && len(block) > params.SemanticRefineThreshold {
			subs, err := semanticRefine(ctx, block, params, em)
			if err != nil {
				return nil, err
			}
			refined = append(refined, subs...)
			continue
		}
		refined = append(refined, block)
	}

	out := make([]Candidate, 0, len(refined))
	for _, block := range refined {
		if len(block) < 2 {
			// Single-line sessions are skipped unless reply-chained into a
			// larger block (which temporalSplit already keeps merged), per
			// §4.5 "Sessions with fewer than 2 messages are skipped".
			continue
		}
		ids := make([]string, len(block))
		for i, m := range block {
			ids[i] = m.ID
		}
		out = append(out, Candidate{
			StartMessageID: block[0].ID,
			EndMessageID:   block[len(block)-1].ID,
			MessageIDs:     ids,
			StartTime:      block[0].Timestamp,
			EndTime:        block[len(block)-1].Timestamp,
			MessageCount:   len(block),
		})
	}
	return out, nil
}

// temporalSplit applies the primary heuristic (§4.5): a new session starts
// unless the message is a reply chained into the current session, the gap
// is within T_gap, and the running token estimate stays under T_max.
func temporalSplit(messages []domain.Message, params Params) [][]domain.Message {
	var blocks [][]domain.Message
	var current []domain.Message
	var currentIDs map[string]bool
	var tokenEstimate int

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, current)
		}
		current = nil
		currentIDs = nil
		tokenEstimate = 0
	}

	for i, m := range messages {
		if i == 0 {
			current = []domain.Message{m}
			currentIDs = map[string]bool{m.ID: true}
			tokenEstimate = estimateTokens(m.Content)
			continue
		}
		prev := messages[i-1]
		isReplyIntoSession := m.ReplyToID != nil && currentIDs[*m.ReplyToID]
		gapExceeded := m.Timestamp.Sub(prev.Timestamp) > params.TimeGap
		nextTokens := tokenEstimate + estimateTokens(m.Content)

		startNew := (gapExceeded && !isReplyIntoSession) || nextTokens > params.MaxTokens
		if startNew {
			flush()
			current = []domain.Message{m}
			currentIDs = map[string]bool{m.ID: true}
			tokenEstimate = estimateTokens(m.Content)
			continue
		}
		current = append(current, m)
		currentIDs[m.ID] = true
		tokenEstimate = nextTokens
	}
	flush()
	return blocks
}

// semanticRefine splits a large block at breakpoints where consecutive
// cosine similarity falls into the bottom p-th percentile, provided each
// resulting sub-session keeps at least SemanticMinSubSession messages
// (§4.5). This is a pure function of the message list and percentile.
func semanticRefine(ctx context.Context, block []domain.Message, params Params, em embedder.Embedder) ([][]domain.Message, error) {
	texts := make([]string, len(block))
	for i, m := range block {
		texts[i] = m.Content
	}
	vectors, err := em.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	sims := make([]float64, 0, len(block)-1)
	for i := 1; i < len(vectors); i++ {
		sims = append(sims, cosine(vectors[i-1], vectors[i]))
	}
	if len(sims) == 0 {
		return [][]domain.Message{block}, nil
	}

	threshold := percentile(sims, params.SemanticPercentile)

	var out [][]domain.Message
	start := 0
	for i, sim := range sims {
		breakAt := i + 1 // index of the second message in the pair
		if sim <= threshold {
			left := block[start:breakAt]
			right := block[breakAt:]
			if len(left) >= params.SemanticMinSubSession && len(right) >= params.SemanticMinSubSession {
				out = append(out, left)
				start = breakAt
			}
		}
	}
	out = append(out, block[start:])
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt(na) * sqrt(nb))
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// percentile returns the value at the given percentile (0-100) of a sorted
// copy of values, using linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// estimateTokens is a cheap word-count-based proxy; the spec's token
// budgets are approximate ("≈480 tokens after enrichment"), not a billing
// boundary, so a tokenizer dependency is not warranted.
func estimateTokens(s string) int {
	fields := strings.Fields(s)
	return len(fields) + len(fields)/3 // rough sub-word inflation factor
}

// Enrich produces the canonical text form handed to the Embedder (§4.5).
// It never mutates the input messages; enrichment applies to the text only.
func Enrich(channelName string, messages []domain.Message, authorNames map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation in #%s:\n", channelName)
	for _, m := range messages {
		name := authorNames[m.AuthorID]
		if name == "" {
			name = m.AuthorID
		}
		fmt.Fprintf(&b, "[%s @ %s]: %s\n", name, m.Timestamp.Format("2006-01-02 15:04"), m.Content)
	}
	return b.String()
}
