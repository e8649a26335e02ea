package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/api"
	"github.com/Vasu1712/scenyx-chat/internal/api/admin"
	"github.com/Vasu1712/scenyx-chat/internal/api/dms"
	"github.com/Vasu1712/scenyx-chat/internal/auth"
	"github.com/Vasu1712/scenyx-chat/internal/chat"
	"github.com/Vasu1712/scenyx-chat/internal/config"
	"github.com/Vasu1712/scenyx-chat/internal/logging"
	"github.com/Vasu1712/scenyx-chat/internal/middleware"
	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/presence"
	"github.com/Vasu1712/scenyx-chat/internal/storage"
	"github.com/Vasu1712/scenyx-chat/internal/storage/memory"
	"github.com/Vasu1712/scenyx-chat/internal/storage/postgres"
	"github.com/Vasu1712/scenyx-chat/internal/storage/sqlite"
	"github.com/Vasu1712/scenyx-chat/internal/storage/valkey"
	"github.com/Vasu1712/scenyx-chat/internal/ws"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.FileConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// app is the wired server: storage, presence, the socket hub and every route.
type app struct {
	handler  http.Handler
	registry *presence.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg config.FileConfig) (*app, error) {
	a := &app{}
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { store.Close() })
	slog.Info("storage ready", "driver", cfg.Storage.Driver)

	if err := seedUsers(ctx, store, cfg.Users); err != nil {
		a.Close()
		return nil, err
	}

	// Interface values stay nil unless valkey is configured.
	var (
		recorder ws.LastSeenRecorder
		reader   dms.LastSeenReader
	)
	if cfg.Valkey.Addr != "" {
		lastSeen, err := valkey.NewLastSeenStore(cfg.Valkey.Addr, cfg.Valkey.LastSeenTTLDuration())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect valkey: %w", err)
		}
		a.closers = append(a.closers, lastSeen.Close)
		recorder, reader = lastSeen, lastSeen
		slog.Info("last-seen tracking enabled", "addr", cfg.Valkey.Addr)
	}

	a.registry = presence.NewRegistry()
	hub := ws.NewHub(a.registry, recorder)
	svc := chat.NewService(store, a.registry)

	var verifier *auth.Verifier
	identify := ws.QueryIdentity
	if cfg.Auth.JWTKey != "" {
		verifier = auth.NewVerifier(cfg.Auth.JWTKey)
		identify = auth.SocketIdentity(verifier, !cfg.Auth.RequireSocketToken)
		if !cfg.Auth.RequireSocketToken {
			slog.Warn("sockets without a token are trusted via the userId query parameter")
		}
	}
	socket := ws.NewHandler(hub, svc, ws.Options{
		Identify:     identify,
		EventTimeout: cfg.Socket.EventTimeoutDuration(),
		SendBuffer:   cfg.Socket.SendBuffer,
		CheckOrigin:  originChecker(cfg.CORS.Origins),
		Users:        store,
	})

	r := mux.NewRouter()
	r.Handle("/socket", socket)
	r.Handle("/ws/dms", socket)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "connections": hub.Len()})
	}).Methods(http.MethodGet)

	if verifier != nil {
		requireAuth := middleware.RequireAuth(verifier)
		provision := middleware.ProvisionUser(store)
		dms.RegisterDMRoutes(r, &dms.DMHandler{
			Chat:     svc,
			Store:    store,
			Presence: a.registry,
			LastSeen: reader,
		}, requireAuth, provision)
		admin.RegisterAdminRoutes(r, &admin.AdminHandler{
			Store:    store,
			Chat:     svc,
			Presence: a.registry,
			Sessions: hub,
		}, requireAuth, provision, middleware.RequireAdmin(store))
	} else {
		slog.Warn("auth.jwtKey not set; REST routes disabled and sockets trust the userId query parameter")
	}

	a.handler = middleware.RequestID(middleware.RequestLog(middleware.CORS(cfg.CORS.Origins)(r)))
	return a, nil
}

// seedUsers provisions the configured users. A configured role wins over the stored one.
func seedUsers(ctx context.Context, store storage.Archive, users []config.SeedUser) error {
	for _, su := range users {
		u, err := store.EnsureUser(ctx, models.User{
			ID:        su.ID,
			Email:     su.Email,
			FirstName: su.FirstName,
			LastName:  su.LastName,
			Role:      models.Role(su.Role),
		})
		if err != nil {
			return fmt.Errorf("seed user %s: %w", su.ID, err)
		}
		if su.Role != "" && u.Role != models.Role(su.Role) {
			if _, err := store.UpdateUserRole(ctx, su.ID, models.Role(su.Role)); err != nil {
				return fmt.Errorf("seed user %s role: %w", su.ID, err)
			}
		}
	}
	if len(users) > 0 {
		slog.Info("seeded users", "count", len(users))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	default:
		return memory.NewStore(), nil
	}
}

// originChecker mirrors the CORS allowlist for websocket handshakes.
// Requests without an Origin header are accepted.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}
