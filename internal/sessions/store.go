package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
)

const tokenBytes = 32

type scopedRunner interface {
	InScope(ctx context.Context, scope tenancy.Scope, fn func(tx *gorm.DB) error) error
}

// Store persists opaque session tokens in the database so that sessions
// survive process restarts and are shared across replicas. Tokens are
// bearer secrets; only their presence in the table makes them valid.
type Store struct {
	runner scopedRunner
	ttl    time.Duration
}

// NewStore constructs a session store.
func NewStore(runner scopedRunner, cfg config.SessionConfig) (*Store, error) {
	if runner == nil {
		return nil, fmt.Errorf("scoped runner is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Store{runner: runner, ttl: cfg.TTL}, nil
}

// Create mints a fresh opaque token for the user and persists it. The
// returned token is shown to the client exactly once, via the cookie.
func (s *Store) Create(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	session := &models.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}
	if err := s.persist(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// persist upserts on the token value: a repeated token takes over the
// row rather than failing the login.
func (s *Store) persist(ctx context.Context, session *models.Session) error {
	return s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "expires_at"}),
		}).Create(session).Error
	})
}

// Resolve maps a presented token to its user. It returns (nil, nil) for
// unknown, expired, or suspended-user tokens; the caller cannot tell
// those cases apart. Expired rows are deleted on sight so the table does
// not accumulate dead sessions.
func (s *Store) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	var user *models.User
	err := s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.First(&session, "token = ?", token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if time.Now().UTC().After(session.ExpiresAt) {
			return tx.Delete(&models.Session{}, "token = ?", token).Error
		}
		var found models.User
		if err := tx.First(&found, "id = ?", session.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if found.Status != enums.UserStatusActive {
			return nil
		}
		user = &found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Delete revokes a token. Deleting a token that no longer exists is not
// an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		return tx.Delete(&models.Session{}, "token = ?", token).Error
	})
}

// DeleteForUser revokes every session belonging to a user, used when an
// account is suspended.
func (s *Store) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	return s.runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		return tx.Delete(&models.Session{}, "user_id = ?", userID).Error
	})
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
