package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/wsbridge/pkg/protocol"
)

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Emit an event right away so the client sees the stream open.
	if err := protocol.WriteReserved(w, protocol.EventConnected); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	s.logger.Debug("sse client connected", zap.String("remote", r.RemoteAddr))
	defer s.logger.Debug("sse client disconnected", zap.String("remote", r.RemoteAddr))

	for {
		payload, ok, err := s.inbound.PopTimeout(ctx, s.cfg.HeartbeatInterval)
		if err != nil {
			return
		}

		if ok {
			err = protocol.WriteEvent(w, payload)
		} else {
			err = protocol.WriteReserved(w, protocol.EventHeartbeat)
		}
		if err != nil {
			if ok {
				s.logger.Warn("dropping payload, sse write failed",
					zap.String("remote", r.RemoteAddr),
					zap.Error(err))
			}
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, protocol.NoMessageText)
		return
	}

	message, err := protocol.ParseSendRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.NoMessageText)
		return
	}

	if err := s.outbound.Push(message); err != nil {
		s.logger.Warn("failed to queue outbound payload", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Bridge is shutting down")
		return
	}

	s.logger.Debug("queued outbound payload", zap.Int("bytes", len(message)))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	State          string     `json:"state"`
	SessionID      string     `json:"session_id,omitempty"`
	Endpoint       string     `json:"endpoint,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	InboundQueued  int        `json:"inbound_queued"`
	OutboundQueued int        `json:"outbound_queued"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := statusResponse{
		State:          "unknown",
		InboundQueued:  s.inbound.Len(),
		OutboundQueued: s.outbound.Len(),
	}
	if s.status != nil {
		st := s.status()
		resp.State = st.State.String()
		resp.SessionID = st.SessionID
		resp.Endpoint = st.Endpoint
		if !st.ConnectedSince.IsZero() {
			since := st.ConnectedSince.UTC()
			resp.ConnectedSince = &since
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
