package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/bookverse/identity/internal/db"
	"github.com/bookverse/identity/internal/handlers"
	"github.com/bookverse/identity/internal/handlers/middleware"
	"github.com/bookverse/identity/internal/logger"
	"github.com/bookverse/identity/internal/repository/postgres"
	"github.com/bookverse/identity/internal/service/auth"
	"github.com/bookverse/identity/internal/service/auth/tokenmanager"
	"github.com/bookverse/identity/internal/service/mail"
	"github.com/bookverse/identity/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger   logger.Logger
	shutdown []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger. Err: %w", err)
	}

	// Error reporting, disabled when DSN is empty
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              c.SentryDSN,
		Environment:      c.Environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error while initializing sentry. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Outgoing mail: real SMTP when a host is configured, log otherwise
	var mailer mail.Mailer = mail.LogMailer{Logger: log}
	if c.SMTPHost != "" {
		mailer = mail.NewSMTP(c.SMTPHost, c.SMTPPort, c.SMTPUsername, c.SMTPPassword, c.MailFrom)
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage.Refresh())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{
		CookieSecure:   c.Environment == logger.EnvProduction,
		CookieSameSite: cookieSameSite(c.Environment),
		Mailer:         mailer,
		Logger:         log,
	}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	userService := user.NewService(storage.User())

	// Complete all together as router
	mux := handlers.NewRouter(
		handlers.NewAuth(authService),
		userService,
		middleware.NewAuth(authService),
		middleware.NewAdmin(userService),
		middleware.RecoverMiddleware(log),
		middleware.LoggerMiddleware(log),
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     log,
		shutdown: []func(){
			pool.Close,
			func() { sentry.Flush(2 * time.Second) },
		},
	}, nil
}

// Refresh cookies are strict in production, relaxed in development so
// a local frontend on another port can still send them
func cookieSameSite(environment string) http.SameSite {
	if environment == logger.EnvDevelopment {
		return http.SameSiteLaxMode
	}
	return http.SameSiteStrictMode
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close connections gracefully
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	for _, fn := range s.shutdown {
		fn()
	}

	return err
}
