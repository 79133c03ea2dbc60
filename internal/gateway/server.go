package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// Server is the Gateway Ingestor's one inbound transport: a JSON envelope
// over plain net/http, not a gin router. §3's dropped-dependency note
// explains why gin has no home in this core — the only served surface is
// receiving the platform's at-least-once event stream (§6) and dispatching
// it to the Ingestor, not a REST API for query clients.
type Server struct {
	log *logger.Logger
	ing *Ingestor
}

func NewServer(log *logger.Logger, ing *Ingestor) *Server {
	return &Server{log: log.With("component", "GatewayServer"), ing: ing}
}

// envelope carries the common "type, guild_id, ..." shape every event in
// §6's stream has; Payload is re-decoded into the concrete event struct
// once Type is known.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvent)
	return mux
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "malformed event envelope", http.StatusBadRequest)
		return
	}

	var err error
	switch env.Type {
	case "message_create":
		var e MessageCreateEvent
		if jerr := json.Unmarshal(env.Payload, &e); jerr != nil {
			http.Error(w, "malformed message_create payload", http.StatusBadRequest)
			return
		}
		err = s.ing.OnMessageCreate(r.Context(), e)
	case "message_edit":
		var e MessageEditEvent
		if jerr := json.Unmarshal(env.Payload, &e); jerr != nil {
			http.Error(w, "malformed message_edit payload", http.StatusBadRequest)
			return
		}
		err = s.ing.OnMessageEdit(r.Context(), e)
	case "message_delete":
		var e MessageDeleteEvent
		if jerr := json.Unmarshal(env.Payload, &e); jerr != nil {
			http.Error(w, "malformed message_delete payload", http.StatusBadRequest)
			return
		}
		err = s.ing.OnMessageDelete(r.Context(), e)
	case "bulk_delete":
		var e BulkDeleteEvent
		if jerr := json.Unmarshal(env.Payload, &e); jerr != nil {
			http.Error(w, "malformed bulk_delete payload", http.StatusBadRequest)
			return
		}
		err = s.ing.OnBulkDelete(r.Context(), e)
	case "channel_index_toggle":
		var e ChannelIndexToggleEvent
		if jerr := json.Unmarshal(env.Payload, &e); jerr != nil {
			http.Error(w, "malformed channel_index_toggle payload", http.StatusBadRequest)
			return
		}
		err = s.ing.OnChannelIndexToggle(r.Context(), e)
	case "channel_delete":
		var e ChannelDeleteEvent
		if jerr := json.Unmarshal(env.Payload, &e); jerr != nil {
			http.Error(w, "malformed channel_delete payload", http.StatusBadRequest)
			return
		}
		err = s.ing.OnChannelDelete(r.Context(), e)
	case "attachment_attached":
		var e AttachmentAttachedEvent
		if jerr := json.Unmarshal(env.Payload, &e); jerr != nil {
			http.Error(w, "malformed attachment_attached payload", http.StatusBadRequest)
			return
		}
		err = s.ing.OnAttachmentAttached(r.Context(), e)
	default:
		http.Error(w, "unknown event type: "+env.Type, http.StatusBadRequest)
		return
	}

	if err != nil {
		s.log.Warn("event handling failed", "type", env.Type, "error", err)
		switch domain.KindOf(err) {
		case domain.KindTenantViolation:
			http.Error(w, "tenant violation", http.StatusForbidden)
		case domain.KindNotFound:
			http.Error(w, "not found", http.StatusNotFound)
		case domain.KindConflict:
			http.Error(w, "conflict", http.StatusConflict)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
