package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/pawfinder/apiserver/config"
	"github.com/pawfinder/apiserver/internal/db"
	"github.com/pawfinder/apiserver/internal/handlers"
	"github.com/pawfinder/apiserver/internal/middleware"
	"github.com/pawfinder/apiserver/internal/mq"
	"github.com/pawfinder/apiserver/internal/notify"
	"github.com/pawfinder/apiserver/internal/services"
	"github.com/pawfinder/apiserver/internal/storage"
	"github.com/pawfinder/apiserver/internal/store"
	"go.uber.org/zap"
)

// Server wires the HTTP server, router and backing resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	notifier   *notify.Notifier
	logger     *zap.Logger
	cancelRun  context.CancelFunc
}

// New constructs a Server with all dependencies resolved from config.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.JWT.Secret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	broker, err := mq.NewFromConfig(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	imageStore, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		closeBroker(broker)
		return nil, err
	}
	if imageStore != nil {
		if err := imageStore.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			closeBroker(broker)
			return nil, err
		}
	}

	userRepo := store.NewUserRepository(dbConn)
	petRepo := store.NewPetRepository(dbConn)

	userService := services.NewUserService(userRepo)

	hub := notify.NewHub()
	notifier := notify.NewNotifier(hub, broker, logger)
	petService := services.NewPetService(petRepo, notifier)

	authMiddleware := handlers.RequireAuth(userService, jwtSecret)
	authHandler := handlers.NewAuthHandler(userService, jwtSecret, time.Duration(cfg.JWT.TTLHours)*time.Hour)
	petHandler := handlers.NewPetHandler(petService)
	eventsHandler := handlers.NewEventsHandler(hub)

	var imageHandler *handlers.ImageHandler
	if imageStore != nil {
		imageHandler = handlers.NewImageHandler(petService, imageStore)
	}

	router := chi.NewRouter()
	router.Use(baseMiddleware(cfg, logger)...)

	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authHandler, authMiddleware)
		})
		r.Route("/pets", func(r chi.Router) {
			handlers.PetRouter(r, petHandler, eventsHandler, imageHandler, authMiddleware)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.OwnerRouter(r, petHandler)
		})
	})
	if imageHandler != nil {
		router.Get("/images/*", imageHandler.Serve)
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	// WriteTimeout stays unset so event streams are not cut off.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		notifier:   notifier,
		logger:     logger,
	}, nil
}

// baseMiddleware is the global chain mounted ahead of every route.
// CORS runs before the rate limiter so preflight requests spend no rate
// budget and rate-limited responses still carry CORS headers.
func baseMiddleware(cfg config.Config, logger *zap.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestLogger(logger),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}),
		httprate.LimitByIP(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second),
	}
}

// Router exposes the chi router for route inspection and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the broker bridge and the HTTP server. It blocks until the
// server stops.
func (s *Server) Start() error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancelRun = cancel

	go func() {
		if err := s.notifier.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("event bridge stopped", zap.Error(err))
		}
	}()

	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown and releases all resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if s.cancelRun != nil {
		s.cancelRun()
	}
	closeBroker(s.broker)
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

func closeBroker(broker *mq.MQ) {
	if broker != nil {
		_ = broker.Close()
	}
}
