package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// openAIEmbedder is a thin client, grounded on the teacher's
// platform/openai.Client.Embed, trimmed to only the embeddings endpoint this
// engine needs.
type openAIEmbedder struct {
	log     *logger.Logger
	baseURL string
	apiKey  string
	model   string
	dim     int
	http    *http.Client
}

func NewOpenAIEmbedder(log *logger.Logger, dim int) (Embedder, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &openAIEmbedder{
		log:     log.With("component", "OpenAIEmbedder"),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (e *openAIEmbedder) Dim() int { return e.dim }

func (e *openAIEmbedder) Identity() Identity {
	return Identity{Name: "openai:" + e.model, Version: "1"}
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	clean := make([]string, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			t = " "
		}
		clean[i] = t
	}

	reqBody := map[string]any{"model": e.model, "input": clean}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return nil, domain.Permanent("embedder.encode", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", &buf)
	if err != nil {
		return nil, domain.Transient("embedder.build_request", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, domain.Transient("embedder.http", "request failed", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, domain.Permanent("embedder.http", fmt.Sprintf("status=%d", resp.StatusCode), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.Transient("embedder.http", fmt.Sprintf("status=%d", resp.StatusCode), nil)
	}

	var decoded struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, domain.Permanent("embedder.decode", "decode response", err)
	}

	out := make([][]float32, len(clean))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		if len(d.Embedding) != e.dim {
			return nil, domain.Permanent("embedder.dim", fmt.Sprintf("embedder returned dim=%d, expected=%d", len(d.Embedding), e.dim), nil)
		}
		out[d.Index] = normalize(d.Embedding)
	}
	return out, nil
}

// normalize converts to unit-norm float32, since VS declares cosine
// distance and §4.4 specifies unit-norm output when the embedder provides
// it.
func normalize(v []float64) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}
