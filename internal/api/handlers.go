package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/gemini"
	"github.com/digkill/GenStudio/internal/service"
)

type generateRequest struct {
	Parts   []gemini.Part  `json:"parts"`
	Model   string         `json:"model"`
	Config  map[string]any `json:"config"`
	Cost    int            `json:"cost"`
	ToolKey string         `json:"toolKey"`
}

type generateResponse struct {
	ImageURL   string `json:"imageUrl"`
	NewCredits int    `json:"newCredits"`
	RecordID   string `json:"recordId"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, service.ErrInvalidRequest)
		return
	}

	res, err := s.deps.Generator.Generate(r.Context(), service.GenerateRequest{
		Evidence: evidenceFrom(r),
		Input: service.GenerationInput{
			Parts:  req.Parts,
			Model:  req.Model,
			Config: req.Config,
		},
		Cost:    req.Cost,
		ToolKey: strings.TrimSpace(req.ToolKey),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, generateResponse{
		ImageURL:   res.ImageURL,
		NewCredits: res.NewCredits,
		RecordID:   res.RecordID,
	})
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Caller.Balance(r.Context(), evidenceFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryInt(r, "limit"), queryInt(r, "offset")
	records, err := s.deps.Caller.History(r.Context(), evidenceFrom(r), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Caller.Gallery(r.Context(), evidenceFrom(r), queryInt(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.deps.Packages.ListActive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": packages})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func evidenceFrom(r *http.Request) service.Evidence {
	var ev service.Evidence
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		ev.SessionToken = strings.TrimSpace(auth[7:])
	}
	ev.GuestToken = strings.TrimSpace(r.Header.Get("X-Guest-ID"))
	return ev
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
