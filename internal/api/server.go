package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/i18n"
	"github.com/digkill/GenStudio/internal/metrics"
	"github.com/digkill/GenStudio/internal/models"
	"github.com/digkill/GenStudio/internal/service"
)

// 4 reference images of a few MB each, base64 encoded.
const maxRequestBody = 32 << 20

type Generator interface {
	Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
}

type CallerQueries interface {
	Balance(ctx context.Context, ev service.Evidence) (*service.BalanceView, error)
	History(ctx context.Context, ev service.Evidence, limit, offset int) ([]models.GenerationRecord, error)
	Gallery(ctx context.Context, ev service.Evidence, limit int) ([]models.GalleryItem, error)
}

type PackageCatalog interface {
	ListActive(ctx context.Context) ([]models.CreditPackage, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Generator Generator
	Caller    CallerQueries
	Packages  PackageCatalog
	DB        Pinger
	I18n      *i18n.Manager
	Metrics   *metrics.Registry
	Limiter   *Limiter
	Log       *zap.Logger
}

type Server struct {
	addr           string
	production     bool
	requestTimeout time.Duration
	deps           Deps
	log            *zap.Logger
	router         *chi.Mux
}

func NewServer(addr string, production bool, requestTimeout time.Duration, deps Deps) *Server {
	s := &Server{
		addr:           addr,
		production:     production,
		requestTimeout: requestTimeout,
		deps:           deps,
		log:            deps.Log.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.InstrumentHandler)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.With(s.rateLimit, s.limitBody).Post("/generate", s.handleGenerate)
		r.Get("/credits", s.handleCredits)
		r.Get("/history", s.handleHistory)
		r.Get("/gallery", s.handleGallery)
		r.Get("/packages", s.handlePackages)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// A generation may legitimately take the whole pipeline timeout.
		WriteTimeout: s.requestTimeout + 30*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", zap.Error(err))
		}
	}()

	s.log.Info("api listening", zap.String("addr", s.addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Limiter != nil && !s.deps.Limiter.Allow(limiterKey(r)) {
			s.writeMessage(w, r, http.StatusTooManyRequests, codeRateLimited, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
