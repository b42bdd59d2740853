package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/streampulse/accounts/internal/auth"
	"github.com/streampulse/accounts/internal/config"
	"github.com/streampulse/accounts/internal/media"
	"github.com/streampulse/accounts/internal/obs"
	pg "github.com/streampulse/accounts/internal/repository/postgres"
	accountsvc "github.com/streampulse/accounts/internal/services/accounts/account"
	authsvc "github.com/streampulse/accounts/internal/services/accounts/auth"
)

func buildHTTPServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *pg.DB, store *media.S3Store) (*http.Server, error) {
	tokens, err := auth.NewTokenManager(auth.Keys{
		AccessSecret:  []byte(cfg.Auth.AccessSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshSecret),
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	}, nil)
	if err != nil {
		return nil, err
	}
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)

	accountRepo := pg.NewAccountRepo(db)
	outboxRepo := pg.NewOutboxRepo(db)
	tx := pg.NewTransactor(db, logger)

	authUC := authsvc.NewUsecase(authsvc.Deps{
		Accounts: accountRepo,
		Tokens:   tokens,
		Hasher:   hasher,
		Outbox:   outboxRepo,
		Tx:       tx,
		Logger:   logger,
	})
	authCtl := authsvc.NewController(authUC, authsvc.Opts{
		Logger:            logger,
		AccessCookieName:  cfg.Auth.AccessCookieName,
		RefreshCookieName: cfg.Auth.RefreshCookieName,
		CookieDomain:      cfg.Auth.CookieDomain,
		CookiePath:        cfg.Auth.CookiePath,
		CookieSecure:      cfg.Auth.CookieSecure,
		AccessTTL:         cfg.Auth.AccessTTL,
		RefreshTTL:        cfg.Auth.RefreshTTL,
	})

	accountUC := accountsvc.NewUsecase(accountsvc.Deps{
		Accounts: accountRepo,
		Hasher:   hasher,
		Media:    store,
		Outbox:   outboxRepo,
		Tx:       tx,
		Logger:   logger,
	})
	accountCtl := accountsvc.NewController(accountUC, logger)

	gate := authsvc.Gate(tokens, accountRepo, cfg.Auth.AccessCookieName, logger)

	mux := http.NewServeMux()
	authCtl.Routes(mux, gate)
	accountCtl.Routes(mux, gate)

	root := http.NewServeMux()
	root.Handle("/", otelhttp.NewHandler(mux, "accounts.http"))
	root.Handle("/metrics", obs.MetricsHandler())
	root.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		hctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := db.Pool.Ping(hctx); err != nil {
			http.Error(w, "unhealthy: db", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := cors(cfg.Server.CORSOrigins)(root)

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}

func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if _, ok := allowed[origin]; ok || wildcard {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Refresh-Token")
					h.Add("Vary", "Origin")
				}
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
