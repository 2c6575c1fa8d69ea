package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/models"
	"github.com/digkill/GenStudio/internal/repository"
	"github.com/digkill/GenStudio/internal/service"
)

type Accounts interface {
	List(ctx context.Context, limit, offset int) ([]models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, input service.CreateAccountInput) (*models.Account, error)
	Update(ctx context.Context, id string, input service.UpdateAccountInput) (*models.Account, error)
	AdjustCredits(ctx context.Context, id string, delta int) (int, error)
}

type Packages interface {
	List(ctx context.Context) ([]models.CreditPackage, error)
	Create(ctx context.Context, input service.CreatePackageInput) (*models.CreditPackage, error)
	Update(ctx context.Context, id int64, input service.UpdatePackageInput) (*models.CreditPackage, error)
	Delete(ctx context.Context, id int64) error
}

type Configs interface {
	List(ctx context.Context) ([]models.SystemConfig, error)
	Set(ctx context.Context, cfg models.SystemConfig) (*models.SystemConfig, error)
}

type History interface {
	ListRecent(ctx context.Context, limit int) ([]models.GenerationRecord, error)
}

type Server struct {
	addr     string
	username string
	password string
	log      *zap.Logger
	accounts Accounts
	packages Packages
	configs  Configs
	history  History
	router   *chi.Mux
}

func NewServer(addr, username, password string, log *zap.Logger, accounts Accounts, packages Packages, configs Configs, history History) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log.Named("admin"),
		accounts: accounts,
		packages: packages,
		configs:  configs,
		history:  history,
		router:   r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Get("/{id}", s.handleGetAccount)
			r.Put("/{id}", s.handleUpdateAccount)
			r.Post("/{id}/credits", s.handleAdjustCredits)
		})
		protected.Route("/packages", func(r chi.Router) {
			r.Get("/", s.handleListPackages)
			r.Post("/", s.handleCreatePackage)
			r.Put("/{id}", s.handleUpdatePackage)
			r.Delete("/{id}", s.handleDeletePackage)
		})
		protected.Route("/configs", func(r chi.Router) {
			r.Get("/", s.handleListConfigs)
			r.Put("/{key}", s.handleSetConfig)
		})
		protected.Get("/generations", s.handleRecentGenerations)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", zap.Error(err))
		}
	}()

	s.log.Info("admin console listening", zap.String("addr", s.addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	accounts, err := s.accounts.List(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if acc == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	acc, err := s.accounts.Create(r.Context(), service.CreateAccountInput{
		Email:            req.Email,
		DisplayName:      req.DisplayName,
		Role:             models.Role(req.Role),
		Credits:          req.Credits,
		SubscriptionType: req.SubscriptionType,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	input := service.UpdateAccountInput{
		DisplayName:           req.DisplayName,
		SubscriptionType:      req.SubscriptionType,
		SubscriptionExpiresAt: req.SubscriptionExpiresAt,
		ClearSubscription:     req.ClearSubscription,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		input.Role = &role
	}
	acc, err := s.accounts.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleAdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req creditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	balance, err := s.accounts.AdjustCredits(r.Context(), id, req.Delta)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.log.Info("credits adjusted", zap.String("account_id", id), zap.Int("delta", req.Delta), zap.Int("balance", balance))
	s.writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.packages.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, packages)
}

func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pkg, err := s.packages.Create(r.Context(), service.CreatePackageInput{
		Title:           req.Title,
		Description:     req.Description,
		Currency:        req.Currency,
		PriceMinorUnits: req.PriceMinorUnits,
		Credits:         req.Credits,
		IsActive:        req.IsActive,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pkg)
}

func (s *Server) handleUpdatePackage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req packageUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pkg, err := s.packages.Update(r.Context(), id, service.UpdatePackageInput{
		Title:           req.Title,
		Description:     req.Description,
		Currency:        req.Currency,
		PriceMinorUnits: req.PriceMinorUnits,
		Credits:         req.Credits,
		IsActive:        req.IsActive,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.packages.Delete(r.Context(), id); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.configs.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cfg, err := s.configs.Set(r.Context(), models.SystemConfig{
		Key:         chi.URLParam(r, "key"),
		Value:       req.Value,
		ValueType:   models.ConfigValueType(req.ValueType),
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if cfg != nil && cfg.Key == service.GuestDefaultCreditsKey {
		s.log.Info("guest default credits changed; takes effect on next restart", zap.String("value", cfg.Value))
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleRecentGenerations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	records, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="genstudio"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

type accountRequest struct {
	Email            string `json:"email"`
	DisplayName      string `json:"display_name"`
	Role             string `json:"role"`
	Credits          int    `json:"credits"`
	SubscriptionType string `json:"subscription_type"`
}

type accountUpdateRequest struct {
	DisplayName           *string    `json:"display_name"`
	Role                  *string    `json:"role"`
	SubscriptionType      *string    `json:"subscription_type"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
	ClearSubscription     bool       `json:"clear_subscription"`
}

type creditsRequest struct {
	Delta int `json:"delta"`
}

type packageRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Currency        string `json:"currency"`
	PriceMinorUnits int    `json:"price_minor_units"`
	Credits         int    `json:"credits"`
	IsActive        *bool  `json:"is_active"`
}

type packageUpdateRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	Currency        *string `json:"currency"`
	PriceMinorUnits *int    `json:"price_minor_units"`
	Credits         *int    `json:"credits"`
	IsActive        *bool   `json:"is_active"`
}

type configRequest struct {
	Value       string `json:"value"`
	ValueType   string `json:"value_type"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}
