package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kanit/internal/assistant"
	"github.com/hyperjump/kanit/internal/kb"
	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/pkg/utils"
)

const (
	defaultHistoryLimit = 100
	memoryPreview       = 10
	memoryPreviewRunes  = 200
)

func newUploadID() string {
	return uuid.New().String()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.deps.Assistant.Chat(r.Context(), clientID(r), req)
	if err != nil {
		s.respondChatError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}
	send := func(event map[string]any) error {
		begin()
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := s.deps.Assistant.ChatStream(r.Context(), clientID(r), req, func(token string) error {
		return send(map[string]any{"token": token})
	})
	if err != nil {
		if !started {
			s.respondChatError(w, err)
			return
		}
		s.logger.Warn("chat stream failed", zap.Error(err))
		_ = send(map[string]any{"error": "Hata: " + err.Error()})
		return
	}
	_ = send(map[string]any{"done": true})
}

func (s *Server) respondChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assistant.ErrRateLimited):
		s.respondError(w, http.StatusTooManyRequests, "Çok fazla istek")
	case errors.Is(err, assistant.ErrGeneration):
		s.logger.Error("generation failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("chat failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	var doc models.DocumentUpload
	if !s.decode(w, r, &doc) {
		return
	}
	id := kb.UploadDocID(s.newID())
	s.logger.Debug("upload document request", zap.String("id", id), zap.String("filename", doc.Filename))
	added, err := s.deps.KB.Add(r.Context(), id, doc.Content, map[string]string{
		"source":      "user_upload",
		"source_type": string(models.SourceUserUploaded),
		"filename":    doc.Filename,
		"uploaded_at": s.now().UTC().Format(time.RFC3339),
		"category":    "user_content",
	})
	if err != nil {
		s.logger.Error("upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if added {
		s.deps.Stats.Inc(metrics.TotalDocuments)
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"id":       id,
		"filename": doc.Filename,
	})
}

// sizer is implemented by storage backends that can report their on-disk size.
type sizer interface {
	SizeBytes() (int64, error)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Stats.Snapshot()
	resp := map[string]any{
		"total_queries":       snap.TotalQueries,
		"total_web_searches":  snap.TotalWebSearches,
		"total_scraped":       snap.TotalScraped,
		"total_scraped_sites": snap.TotalScraped,
		"total_documents":     snap.TotalDocuments,
		"cache_hits":          snap.CacheHits,
		"cache_misses":        snap.CacheMisses,
		"cache_hit_rate":      snap.CacheHitRate(),
		"quality_rejected":    snap.QualityRejected,
		"cross_verified":      snap.CrossVerified,
		"conflicts_resolved":  snap.ConflictsResolved,
		"avg_confidence":      snap.AvgConfidence,
		"db_size":             s.deps.KB.Count(),
		"timestamp":           s.now().Format(time.RFC3339),
	}
	if sz, ok := s.deps.Chats.(sizer); ok {
		if n, err := sz.SizeBytes(); err == nil {
			resp["disk_usage_bytes"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ollama := "unknown"
	if s.deps.LLM != nil {
		if err := s.deps.LLM.Ping(r.Context()); err != nil {
			s.logger.Warn("ollama unreachable", zap.Error(err))
			ollama = "unreachable"
		} else {
			ollama = "ok"
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"ollama":      ollama,
		"model":       s.model,
		"searxng_url": s.searxngURL,
		"db_size":     s.deps.KB.Count(),
	})
}

type messageView struct {
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	user, session := chi.URLParam(r, "user"), chi.URLParam(r, "session")
	msgs := s.deps.Memory.Messages(user, session)
	resp := map[string]any{
		"user_id":        user,
		"session_id":     session,
		"total_messages": len(msgs),
	}
	if len(msgs) > 0 {
		resp["last_activity"] = msgs[len(msgs)-1].Timestamp
	}
	if len(msgs) > memoryPreview {
		msgs = msgs[len(msgs)-memoryPreview:]
	}
	views := make([]messageView, len(msgs))
	for i, m := range msgs {
		views[i] = messageView{Role: m.Role, Content: utils.Truncate(m.Content, memoryPreviewRunes), Timestamp: m.Timestamp}
	}
	resp["messages"] = views
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	user, session := chi.URLParam(r, "user"), chi.URLParam(r, "session")
	s.deps.Memory.Clear(user, session)
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Sohbet hafızası temizlendi"})
}

// handleHistory serves the persisted transcript, or the in-memory window
// when no chat store is configured.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, session := chi.URLParam(r, "user"), chi.URLParam(r, "session")
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var views []messageView
	if s.deps.Chats != nil {
		records, err := s.deps.Chats.History(r.Context(), user, session, limit)
		if err != nil {
			s.logger.Error("history failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		views = make([]messageView, len(records))
		for i, rec := range records {
			views[i] = messageView{Role: rec.Role, Content: rec.Content, Timestamp: rec.Timestamp}
		}
	} else {
		msgs := s.deps.Memory.Messages(user, session)
		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
		views = make([]messageView, len(msgs))
		for i, m := range msgs {
			views[i] = messageView(m)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"user_id":    user,
		"session_id": session,
		"returned":   len(views),
		"messages":   views,
	})
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chats == nil {
		s.respondError(w, http.StatusNotImplemented, "chat history storage not enabled")
		return
	}
	user, session := chi.URLParam(r, "user"), chi.URLParam(r, "session")
	data, err := s.deps.Chats.ExportHistory(r.Context(), user, session)
	if err != nil {
		s.logger.Error("export history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "chat_"+user+"_"+session+".json"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decode reads and validates a JSON body into dst, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// clientID identifies the caller for rate limiting: the first
// X-Forwarded-For entry, else the remote host.
func clientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
