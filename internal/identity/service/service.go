// Package service is the local identity provider: accounts, sign-in and
// access token sessions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ncc/internal/identity/models"
	"ncc/internal/identity/token"
	"ncc/pkg/attrs"
	id "ncc/pkg/domain"
	dErrors "ncc/pkg/domain-errors"
	"ncc/pkg/email"
	audit "ncc/pkg/platform/audit"
	"ncc/pkg/platform/middleware/auth"
	"ncc/pkg/platform/sentinel"
	"ncc/pkg/requestcontext"
)

type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, userID id.UserID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RoleResolver looks up the role recorded on the user's profile.
type RoleResolver interface {
	IsAdmin(ctx context.Context, userID id.UserID) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const minPasswordLength = 6

// Service issues and validates sessions for local accounts.
type Service struct {
	accounts       AccountStore
	trl            RevocationList
	tokens         *token.Service
	roles          RoleResolver
	bcryptCost     int
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithRoleResolver(roles RoleResolver) Option {
	return func(s *Service) {
		s.roles = roles
	}
}

// WithBcryptCost lowers the hashing cost in tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(accounts AccountStore, trl RevocationList, tokens *token.Service, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, errors.New("account store is required")
	}
	if trl == nil {
		return nil, errors.New("revocation list is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	s := &Service{
		accounts:   accounts,
		trl:        trl,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateAccount registers a new account. Email is unique ignoring case.
func (s *Service) CreateAccount(ctx context.Context, address, password, name string) (id.UserID, error) {
	address = email.Normalize(address)
	name = strings.TrimSpace(name)
	if address == "" || !strings.Contains(address, "@") {
		return "", dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return "", dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters")
	}
	if name == "" {
		name = email.DeriveName(address)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	account := &models.Account{
		ID:           id.NewUserID(),
		Email:        address,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.New(dErrors.CodeConflict, "an account with this email already exists")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	s.logAudit(ctx, string(audit.EventAccountCreated),
		"user_id", account.ID.String(),
		"email", account.Email,
	)
	return account.ID, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if account == nil || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		s.authFailure(ctx, "invalid_credentials", "email", req.Email)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	role := s.resolveRole(ctx, account.ID)
	signed, claims, err := s.tokens.Issue(token.Subject{
		UserID: account.ID,
		Email:  account.Email,
		Name:   account.Name,
		Role:   role,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.logAudit(ctx, string(audit.EventLoginSucceeded),
		"user_id", account.ID.String(),
		"email", account.Email,
	)
	return &models.LoginResult{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		Session: models.Session{
			UserID:    account.ID,
			Email:     account.Email,
			Name:      account.Name,
			Role:      role,
			TokenID:   claims.ID,
			ExpiresAt: claims.ExpiresAt.Time,
		},
	}, nil
}

// CurrentSession returns the identity behind token once its account is
// readable from the store.
func (s *Service) CurrentSession(ctx context.Context, accessToken string) (*models.Session, error) {
	claims, userID, err := s.validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "account not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load account")
	}
	return &models.Session{
		UserID:    account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Role:      s.resolveRole(ctx, account.ID),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ValidateAccessToken checks signature, expiry and revocation for the auth middleware.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (*auth.Claims, error) {
	claims, userID, err := s.validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{UserID: userID, Email: claims.Email, JTI: claims.ID}, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, userID, err := s.validate(ctx, accessToken)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.trl.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to revoke token")
	}
	s.logAudit(ctx, string(audit.EventLoggedOut),
		"user_id", userID.String(),
		"jti", claims.ID,
	)
	return nil
}

func (s *Service) validate(ctx context.Context, accessToken string) (*token.Claims, id.UserID, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, "", dErrors.New(dErrors.CodeUnauthorized, "missing token")
	}
	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		return nil, "", err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, "", dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	revoked, err := s.trl.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check token revocation")
	}
	if revoked {
		s.authFailure(ctx, "token_revoked", "user_id", userID.String())
		return nil, "", dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
	}
	return claims, userID, nil
}

func (s *Service) resolveRole(ctx context.Context, userID id.UserID) string {
	if s.roles == nil {
		return "user"
	}
	admin, err := s.roles.IsAdmin(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve role, defaulting to user",
			"error", err,
			"user_id", userID.String(),
		)
		return "user"
	}
	if admin {
		return "admin"
	}
	return "user"
}

func (s *Service) authFailure(ctx context.Context, reason string, attributes ...any) {
	s.logAudit(ctx, string(audit.EventAuthFailed), append(attributes, "reason", reason)...)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
	if s.auditPublisher == nil {
		return
	}
	userID := attrs.String(attributes, "user_id")
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		UserID:  id.UserID(userID),
		Subject: userID,
		Action:  event,
		Email:   attrs.String(attributes, "email"),
		Reason:  attrs.String(attributes, "reason"),
	})
}
