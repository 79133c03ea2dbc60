package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

const (
	payloadGuildIDKey   = "guild_id"
	payloadChannelIDKey = "channel_id"
	maxPreviewBytes     = 1024
)

// qdrantStore is a small hand-rolled HTTP client against Qdrant's REST API,
// grounded on the teacher's platform/qdrant adapter: no vector-DB SDK
// dependency, a single base URL + collection, payload-field enforcement
// baked into every write and read path rather than trusted to callers.
type qdrantStore struct {
	log        *logger.Logger
	baseURL    string
	collection string
	nsPrefix   string
	dim        int
	http       *http.Client
}

type Config struct {
	URL             string
	Collection      string
	NamespacePrefix string
	VectorDim       int
	Timeout         time.Duration
}

func NewQdrantStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("vector store URL required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("vector store collection required")
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("vector dim must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	nsPrefix := strings.TrimSpace(cfg.NamespacePrefix)
	if nsPrefix == "" {
		nsPrefix = "ci"
	}
	return &qdrantStore{
		log:        log.With("service", "QdrantVectorStore"),
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		nsPrefix:   nsPrefix,
		dim:        cfg.VectorDim,
		http:       &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *qdrantStore) EnsureNamespace(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dim,
			"distance": "Cosine",
		},
	}
	return s.doJSON(ctx, http.MethodPut, s.collectionPath(""), body, nil, true)
}

func (s *qdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	qPoints := make([]map[string]any, 0, len(points))
	for _, p := range points {
		if strings.TrimSpace(p.GuildID) == "" {
			return domain.TenantViolation("vectorstore.upsert", "point missing guild_id: id="+p.ID)
		}
		if len(p.Vector) != s.dim {
			return domain.Permanent("vectorstore.upsert", fmt.Sprintf("vector dim mismatch: expected=%d got=%d", s.dim, len(p.Vector)), nil)
		}
		preview := p.Preview
		if len(preview) > maxPreviewBytes {
			preview = preview[:maxPreviewBytes]
		}
		payload := map[string]any{
			payloadGuildIDKey: p.GuildID,
			"kind":            p.Kind,
			"source_ids":      p.SourceIDs,
			"preview":         preview,
		}
		if p.ChannelID != "" {
			payload[payloadChannelIDKey] = p.ChannelID
		}
		if p.StartTime != nil {
			payload["start_time"] = *p.StartTime
		}
		if p.EndTime != nil {
			payload["end_time"] = *p.EndTime
		}
		qPoints = append(qPoints, map[string]any{
			"id":      s.pointID(p.ID),
			"vector":  p.Vector,
			"payload": payload,
		})
	}
	req := map[string]any{"points": qPoints}
	return s.doJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil, false)
}

func (s *qdrantStore) Query(ctx context.Context, vector []float32, filter Filter, k int, scoreMin float64) ([]Match, error) {
	if strings.TrimSpace(filter.GuildID) == "" {
		return nil, domain.TenantViolation("vectorstore.query", "query missing guild_id filter")
	}
	if len(vector) != s.dim {
		return nil, domain.Permanent("vectorstore.query", fmt.Sprintf("vector dim mismatch: expected=%d got=%d", s.dim, len(vector)), nil)
	}
	if k <= 0 {
		k = 10
	}

	must := []map[string]any{
		{"key": payloadGuildIDKey, "match": map[string]any{"value": filter.GuildID}},
	}
	if filter.ChannelID != "" {
		must = append(must, map[string]any{"key": payloadChannelIDKey, "match": map[string]any{"value": filter.ChannelID}})
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter":       map[string]any{"must": must},
	}
	if scoreMin > 0 {
		req["score_threshold"] = scoreMin
	}

	var result struct {
		Items []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload map[string]any  `json:"payload"`
		} `json:"result"`
	}
	if err := s.doJSONEnvelope(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &result); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(result.Items))
	for _, it := range result.Items {
		guildID, _ := it.Payload[payloadGuildIDKey].(string)
		if guildID != filter.GuildID {
			// Defense in depth: the filter already constrained this, but a
			// mismatch here would be a tenant leak, so it is never silently
			// dropped — it is logged as an alertable violation (§7).
			s.log.Error("tenant violation: query result guild_id mismatch", "expected", filter.GuildID, "got", guildID)
			continue
		}
		out = append(out, Match{ID: string(it.ID), Score: it.Score, Payload: it.Payload})
	}
	return out, nil
}

func (s *qdrantStore) Delete(ctx context.Context, guildID string, ids []string) error {
	if strings.TrimSpace(guildID) == "" {
		return domain.TenantViolation("vectorstore.delete", "delete missing guild_id")
	}
	if len(ids) == 0 {
		return nil
	}
	qIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		qIDs = append(qIDs, s.pointID(id))
	}
	req := map[string]any{"points": qIDs}
	return s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil, false)
}

func (s *qdrantStore) DeleteWhere(ctx context.Context, filter Filter) error {
	if strings.TrimSpace(filter.GuildID) == "" {
		return domain.TenantViolation("vectorstore.delete_where", "delete_where missing guild_id filter")
	}
	must := []map[string]any{
		{"key": payloadGuildIDKey, "match": map[string]any{"value": filter.GuildID}},
	}
	if filter.ChannelID != "" {
		must = append(must, map[string]any{"key": payloadChannelIDKey, "match": map[string]any{"value": filter.ChannelID}})
	}
	req := map[string]any{"filter": map[string]any{"must": must}}
	return s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil, false)
}

func (s *qdrantStore) Scroll(ctx context.Context, guildID string, cursor string, limit int) ([]Point, string, error) {
	if limit <= 0 {
		limit = 200
	}
	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if guildID != "" {
		req["filter"] = map[string]any{
			"must": []map[string]any{{"key": payloadGuildIDKey, "match": map[string]any{"value": guildID}}},
		}
	}
	if cursor != "" {
		req["offset"] = cursor
	}

	var result struct {
		Result struct {
			Points []struct {
				ID      json.RawMessage `json:"id"`
				Payload map[string]any  `json:"payload"`
			} `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := s.doJSONEnvelope(ctx, http.MethodPost, s.collectionPath("/points/scroll"), req, &result); err != nil {
		return nil, "", err
	}

	out := make([]Point, 0, len(result.Result.Points))
	for _, p := range result.Result.Points {
		guild, _ := p.Payload[payloadGuildIDKey].(string)
		channel, _ := p.Payload[payloadChannelIDKey].(string)
		var sourceIDs []string
		if raw, ok := p.Payload["source_ids"].([]any); ok {
			for _, s := range raw {
				if str, ok := s.(string); ok {
					sourceIDs = append(sourceIDs, str)
				}
			}
		}
		kind, _ := p.Payload["kind"].(string)
		out = append(out, Point{ID: string(p.ID), GuildID: guild, ChannelID: channel, SourceIDs: sourceIDs, Kind: kind})
	}

	next := ""
	if len(result.Result.NextPageOffset) > 0 {
		var s string
		if err := json.Unmarshal(result.Result.NextPageOffset, &s); err == nil {
			next = s
		}
	}
	return out, next, nil
}

func (s *qdrantStore) pointID(vectorID string) string {
	return s.nsPrefix + ":" + vectorID
}

func (s *qdrantStore) collectionPath(suffix string) string {
	return "/collections/" + s.collection + suffix
}

func (s *qdrantStore) doJSON(ctx context.Context, method, path string, in any, out any, allow4xxExists bool) error {
	var buf bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return domain.Permanent("vectorstore.encode", "encode request", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, &buf)
	if err != nil {
		return domain.Transient("vectorstore.build_request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return domain.Transient("vectorstore.http", "request failed", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == 409 && allow4xxExists {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Transient("vectorstore.http", fmt.Sprintf("status=%d body=%s", resp.StatusCode, truncate(raw)), nil)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (s *qdrantStore) doJSONEnvelope(ctx context.Context, method, path string, in any, out any) error {
	return s.doJSON(ctx, method, path, in, out, false)
}

func truncate(b []byte) string {
	if len(b) > 512 {
		return string(b[:512]) + "..."
	}
	return string(b)
}
