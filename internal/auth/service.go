package auth

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/internal/users"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
	"github.com/pantrylink/pantrylink-backend/pkg/security"
)

// The same message covers unknown email, wrong password, suspended
// accounts, and organization mismatches. No probe gets to learn which
// one it hit.
const invalidCredentialsMessage = "invalid credentials"

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

type userStore interface {
	FindByEmail(tx *gorm.DB, email string) (*models.User, error)
	StampLastLogin(tx *gorm.DB, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Create(ctx context.Context, userID uuid.UUID) (*models.Session, error)
	Delete(ctx context.Context, token string) error
}

type rateLimiter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Service authenticates users and manages their sessions.
type Service interface {
	Login(ctx context.Context, tenant *models.Tenant, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	ClientIP string `json:"-"`
}

// LoginResult carries the authenticated user and the freshly minted session.
type LoginResult struct {
	User    *models.User
	Session *models.Session
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Runner    scopedRunner
	Users     userStore
	Sessions  sessionManager
	Limiter   rateLimiter
	Log       *logger.Logger
	RateLimit config.AuthRateLimitConfig
}

type service struct {
	runner   scopedRunner
	users    userStore
	sessions sessionManager
	limiter  rateLimiter
	log      *logger.Logger
	limits   config.AuthRateLimitConfig
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Runner == nil {
		return nil, fmt.Errorf("scoped runner is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if params.Log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		runner:   params.Runner,
		users:    params.Users,
		sessions: params.Sessions,
		limiter:  params.Limiter,
		log:      params.Log,
		limits:   params.RateLimit,
	}, nil
}

// Login verifies credentials against the platform user table and, when
// a tenant is supplied, requires the account to belong to it. Platform
// operators log in without a tenant.
func (s *service) Login(ctx context.Context, tenant *models.Tenant, req LoginRequest) (*LoginResult, error) {
	email := users.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if err := s.checkRateLimits(ctx, email, req.ClientIP); err != nil {
		return nil, err
	}

	user, err := s.authenticate(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}
	if err := checkMembership(tenant, user); err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}
	s.recordLogin(ctx, user.ID)

	return &LoginResult{User: user, Session: session}, nil
}

// Logout discards the session. Unknown tokens are a no-op.
func (s *service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete session")
	}
	return nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user *models.User
	err := s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		found, err := s.users.FindByEmail(tx, email)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find user")
		}
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Burn a hash comparison anyway so absent and present accounts
		// take comparable time.
		_, _ = security.VerifyPassword(password, dummyHash)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if user.Status != enums.UserStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, nil
}

func (s *service) checkRateLimits(ctx context.Context, email, clientIP string) error {
	if err := s.bump(ctx, "login:email:"+email, s.limits.LoginEmailLimit); err != nil {
		return err
	}
	ip := normalizeIP(clientIP)
	if ip == "" {
		return nil
	}
	return s.bump(ctx, "login:ip:"+ip, s.limits.LoginIPLimit)
}

func (s *service) bump(ctx context.Context, scope string, limit int) error {
	if limit <= 0 {
		return nil
	}
	count, err := s.limiter.IncrWithTTL(ctx, s.limiter.RateLimitKey(scope), s.limits.LoginWindow)
	if err != nil {
		// A broken counter must not lock every account out.
		s.log.Error(ctx, "login rate limit counter unavailable", err)
		return nil
	}
	if count > int64(limit) {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts, try again later")
	}
	return nil
}

func (s *service) recordLogin(ctx context.Context, userID uuid.UUID) {
	err := s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		return s.users.StampLastLogin(tx, userID, time.Now().UTC())
	})
	if err != nil {
		s.log.Error(ctx, "stamp last login", err)
	}
}

func checkMembership(tenant *models.Tenant, user *models.User) error {
	if tenant == nil {
		// Apex login is reserved for platform operators.
		if user.TenantID != nil || user.Role != enums.UserRoleSuperAdmin {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil
	}
	if user.TenantID == nil || *user.TenantID != tenant.ID {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return nil
}

func normalizeIP(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(trimmed); err == nil {
		trimmed = host
	}
	if ip := net.ParseIP(trimmed); ip != nil {
		return ip.String()
	}
	return trimmed
}

// dummyHash is a valid Argon2id encoding of a random throwaway password.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$c29tZXNhbHRzb21lc2FsdA$RdescudvJCsgt3ub+b+dWRWJTmaaJObG"
