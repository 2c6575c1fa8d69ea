package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/service"
)

const codeRateLimited = "RATE_LIMITED"

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Current  *int   `json:"current,omitempty"`
	Required *int   `json:"required,omitempty"`
	Details  string `json:"details,omitempty"`
}

func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindInsufficientCredits:
		return http.StatusPaymentRequired
	case service.KindModelRefusal:
		return http.StatusUnprocessableEntity
	case service.KindGenerationFailed:
		return http.StatusBadGateway
	case service.KindServerBusy:
		return http.StatusServiceUnavailable
	case service.KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	status := statusFor(kind)

	var data map[string]any
	resp := errorResponse{Code: string(kind)}

	var insufficient *service.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		resp.Current = &insufficient.Current
		resp.Required = &insufficient.Required
		data = map[string]any{"Current": insufficient.Current, "Required": insufficient.Required}
	}
	resp.Error = s.localize(r, string(kind), data)

	// The refusal text is the model's own explanation and is shown as is.
	var refusal *service.RefusalError
	if errors.As(err, &refusal) && refusal.Message != "" {
		resp.Error = refusal.Message
	}
	if !s.production {
		resp.Details = err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.String("kind", string(kind)), zap.Error(err))
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, status int, code string, data map[string]any) {
	s.writeJSON(w, status, errorResponse{Code: code, Error: s.localize(r, code, data)})
}

func (s *Server) localize(r *http.Request, id string, data map[string]any) string {
	if s.deps.I18n == nil {
		return id
	}
	lang := s.deps.I18n.Negotiate(r.Header.Get("Accept-Language"))
	return s.deps.I18n.Localize(lang, id, data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
