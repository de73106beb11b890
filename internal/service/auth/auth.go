package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bookverse/identity/internal/apperrors"
	"github.com/bookverse/identity/internal/logger"
	"github.com/bookverse/identity/internal/models"
	"github.com/bookverse/identity/internal/repository"
	"github.com/bookverse/identity/internal/service/auth/tokenmanager"
	"github.com/bookverse/identity/internal/service/mail"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"

	defaultMaxLoginAttempts = 5
	defaultLoginLockWindow  = 15 * time.Minute
	defaultResetTokenTTL    = time.Hour

	resetTokenBytesLen = 32

	defaultMailSendTimeout = 10 * time.Second
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to use during registration or login
	// BcryptHasher is used when not set
	Hasher PasswordHasher

	// Where the access token travels. Defaults: "Authorization", "Bearer"
	AccessHeaderName string
	AccessAuthScheme string

	// Refresh cookie contract. Secure and SameSite default to the
	// production setting (Secure, Strict); development relaxes them
	RefreshCookieName string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	// Login throttling. Zero values get defaults
	MaxLoginAttempts int
	LoginLockWindow  time.Duration

	// Password reset window
	ResetTokenTTL time.Duration

	// Outgoing mail. LogMailer with a no-op logger when not set.
	// MailSendTimeout bounds the detached welcome mail delivery
	Mailer          mail.Mailer
	MailSendTimeout time.Duration

	Logger logger.Logger
}

type AuthService struct {
	// Manager to issue token pairs (access and refresh)
	token *tokenmanager.TokenManager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	storage     repository.Storage
	userRepo    repository.UserRepo
	attemptRepo repository.LoginAttemptRepo

	mailer          mail.Mailer
	mailSendTimeout time.Duration
	logger          logger.Logger

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	cookieSecure      bool
	cookieSameSite    http.SameSite

	maxLoginAttempts int
	loginLockWindow  time.Duration
	resetTokenTTL    time.Duration
}

func NewService(cfg Config, tokenManager *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	if tokenManager == nil {
		return nil, errors.New("token manager must not be nil")
	}
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher
	}
	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = defaultRefreshCookieName
	}
	if cfg.CookieSameSite == 0 {
		cfg.CookieSameSite = http.SameSiteStrictMode
	}
	if cfg.MaxLoginAttempts == 0 {
		cfg.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if cfg.LoginLockWindow == 0 {
		cfg.LoginLockWindow = defaultLoginLockWindow
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = defaultResetTokenTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOp()
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mail.LogMailer{Logger: cfg.Logger}
	}
	if cfg.MailSendTimeout == 0 {
		cfg.MailSendTimeout = defaultMailSendTimeout
	}

	return &AuthService{
		token:             tokenManager,
		hasher:            cfg.Hasher,
		storage:           storage,
		userRepo:          storage.User(),
		attemptRepo:       storage.LoginAttempt(),
		mailer:            cfg.Mailer,
		mailSendTimeout:   cfg.MailSendTimeout,
		logger:            cfg.Logger,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		cookieSecure:      cfg.CookieSecure,
		cookieSameSite:    cfg.CookieSameSite,
		maxLoginAttempts:  cfg.MaxLoginAttempts,
		loginLockWindow:   cfg.LoginLockWindow,
		resetTokenTTL:     cfg.ResetTokenTTL,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, email string, name string, password string) (models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	// The credential record and its first session are created together:
	// a failed token issue must not leave a user row behind
	var user models.User
	var pair models.TokenPair
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err = st.User().CreateUser(ctx, repository.CreateUserParams{
			Email:        email,
			Name:         name,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}

		pair, err = s.token.WithRepo(st.Refresh()).GeneratePair(ctx, user)
		if err != nil {
			return fmt.Errorf("token could not be generated. Err: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	// Welcome mail is fire-and-forget: registration never fails on it.
	// The goroutine carries its own deadline, a stuck SMTP server must
	// not pile up a goroutine per registration
	go func() {
		mailCtx, cancel := context.WithTimeout(context.Background(), s.mailSendTimeout)
		defer cancel()

		if err := s.mailer.Send(mailCtx, user.Email, "Welcome to BookVerse", welcomeMailBody(user.Name)); err != nil {
			s.logger.Warn("welcome mail not delivered", "email", user.Email, "error", err.Error())
		}
	}()

	return pair, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	now := time.Now()

	attempt, err := s.attemptRepo.Get(ctx, email)
	if err != nil {
		return models.TokenPair{}, err
	}
	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return models.TokenPair{}, apperrors.LoginLockedError{Until: *attempt.LockedUntil}
	}

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return models.TokenPair{}, s.loginFailed(ctx, email, now)
		}
		return models.TokenPair{}, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return models.TokenPair{}, s.loginFailed(ctx, email, now)
	}

	if err := s.attemptRepo.Reset(ctx, email); err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return pair, nil
}

// loginFailed counts the failure and reports either the lock or plain
// invalid credentials. Unknown user and wrong password take the same
// path so the response shape does not leak which one it was
func (s *AuthService) loginFailed(ctx context.Context, email string, now time.Time) error {
	lockedUntil, err := s.attemptRepo.RegisterFailure(ctx, email, s.maxLoginAttempts, s.loginLockWindow, now)
	if err != nil {
		return err
	}
	if lockedUntil != nil && now.Before(*lockedUntil) {
		return apperrors.LoginLockedError{Until: *lockedUntil}
	}
	return apperrors.ErrInvalidCredentials
}

// RefreshPair rotates a refresh token: the presented token is consumed
// and a fresh pair is issued.
// Presenting a token that was already rotated away is the classic
// stolen-token symptom: every session of that user is revoked before
// the error is returned, and the caller still gets the same error even
// if the containment write fails
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	used, err := s.token.UseRefresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, apperrors.ErrRefreshTokenReused) {
			revoked, revokeErr := s.token.RevokeAllForUser(ctx, used.UserID)
			if revokeErr != nil {
				s.logger.Error("reuse containment failed", "user_id", used.UserID, "error", revokeErr.Error())
			} else {
				s.logger.Warn("refresh token reuse detected, sessions revoked", "user_id", used.UserID, "revoked", revoked)
			}
		}
		return models.TokenPair{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, used.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return models.TokenPair{}, fmt.Errorf("token owner is gone. Err: %w", apperrors.ErrRefreshTokenNotFound)
		}
		return models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return pair, nil
}

// Logout revokes the presented refresh token.
// Idempotent: an unknown or absent token still counts as logged out
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	if refresh == "" {
		return nil
	}
	return s.token.Revoke(ctx, refresh)
}

// RequestPasswordReset stores a short-lived opaque token on the user
// record and mails it. The reset mail is awaited: the flow is not
// complete until dispatch was at least attempted
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	b := make([]byte, resetTokenBytesLen)
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("error while generating reset token. Err: %w", err)
	}
	token := hex.EncodeToString(b)

	user, err := s.userRepo.SetResetToken(ctx, email, token, time.Now().Add(s.resetTokenTTL))
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, user.Email, "Reset your BookVerse password", resetMailBody(user.Name, token)); err != nil {
		return fmt.Errorf("reset mail could not be sent. Err: %w", err)
	}

	return nil
}

// ResetPassword completes the reset flow. The hash is written and both
// reset fields cleared in one conditional update keyed on the token
func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	_, err = s.userRepo.ResetPasswordByToken(ctx, token, hash, time.Now())
	return err
}

// Auth verifies the access token on the request and returns the
// decoded identity. Every failure is apperrors.ErrUnauthenticated:
// a request is never treated as anonymous
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.AuthUser, error) {
	header := r.Header.Get(s.accessHeaderName)
	if header == "" {
		return models.AuthUser{}, apperrors.ErrUnauthenticated
	}

	access, ok := cutScheme(header, s.accessAuthScheme)
	if !ok {
		return models.AuthUser{}, apperrors.ErrUnauthenticated
	}

	user, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return models.AuthUser{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthenticated, err)
	}

	return user, nil
}

// SetTokenPairToResponse writes the access token to the response
// header and the refresh token to the session cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, s.refreshCookie(pair.Refresh.Value, int(time.Until(pair.Refresh.ExpiresAt).Seconds())))
}

// SetTokenPairToRequest sets the same credentials on an outgoing
// request. Used by tests and clients
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(s.refreshCookie(pair.Refresh.Value, int(time.Until(pair.Refresh.ExpiresAt).Seconds())))
}

// GetRefreshString reads the refresh token cookie from the request
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", fmt.Errorf("refresh cookie is not set. Err: %w", apperrors.ErrRefreshTokenNotFound)
	}
	return cookie.Value, nil
}

// ClearRefreshCookie drops the refresh cookie on the client.
// Called on logout and on every refresh failure so a rejected value is
// not replayed over and over
func (s *AuthService) ClearRefreshCookie(w http.ResponseWriter) {
	cookie := s.refreshCookie("", -1)
	http.SetCookie(w, cookie)
}

func (s *AuthService) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: s.cookieSameSite,
	}
}

func cutScheme(header string, scheme string) (string, bool) {
	if len(header) <= len(scheme)+1 || header[len(scheme)] != ' ' {
		return "", false
	}
	if header[:len(scheme)] != scheme {
		return "", false
	}
	return header[len(scheme)+1:], true
}

func welcomeMailBody(name string) string {
	return fmt.Sprintf("<p>Hi %s,</p><p>Your BookVerse account is ready. Happy reading!</p>", name)
}

func resetMailBody(name string, token string) string {
	return fmt.Sprintf("<p>Hi %s,</p><p>Use this token to reset your password: <b>%s</b>.</p><p>It expires in one hour. If you did not ask for a reset, ignore this mail.</p>", name, token)
}
