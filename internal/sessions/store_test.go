package sessions

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pantrylink/pantrylink-backend/internal/tenancy"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/db/models"
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
)

func testStore(t *testing.T, ttl time.Duration) (*Store, *tenancy.Runner) {
	t.Helper()

	dsn := os.Getenv("PANTRYLINK_DB_DSN")
	if dsn == "" {
		t.Skip("PANTRYLINK_DB_DSN is not set")
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	runner, err := tenancy.NewRunner(conn)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	store, err := NewStore(runner, config.SessionConfig{TTL: ttl})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, runner
}

func seedUser(t *testing.T, runner *tenancy.Runner, status enums.UserStatus) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := runner.InScope(context.Background(), tenancy.PlatformScope(), func(tx *gorm.DB) error {
		return tx.Create(&models.User{
			ID:           id,
			Email:        "session-" + uuid.NewString()[:8] + "@example.org",
			PasswordHash: "x",
			FirstName:    "Test",
			LastName:     "User",
			Role:         enums.UserRoleSuperAdmin,
			Status:       status,
		}).Error
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	t.Cleanup(func() {
		_ = runner.InScope(context.Background(), tenancy.PlatformScope(), func(tx *gorm.DB) error {
			tx.Delete(&models.Session{}, "user_id = ?", id)
			return tx.Delete(&models.User{}, "id = ?", id).Error
		})
	})
	return id
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil, config.SessionConfig{TTL: time.Hour}); err == nil {
		t.Fatal("expected error for nil runner")
	}
	if _, err := NewStore(&tenancy.Runner{}, config.SessionConfig{}); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestGenerateTokenShape(t *testing.T) {
	first, err := generateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	second, err := generateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if first == second {
		t.Fatal("tokens must not repeat")
	}
	if len(first) < 40 {
		t.Fatalf("token unexpectedly short: %d chars", len(first))
	}
	if strings.ContainsAny(first, "+/=") {
		t.Fatalf("token must be cookie-safe, got %q", first)
	}
}

func TestCreateResolveDeleteRoundTrip(t *testing.T) {
	store, runner := testStore(t, time.Hour)
	ctx := context.Background()
	userID := seedUser(t, runner, enums.UserStatusActive)

	session, err := store.Create(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	user, err := store.Resolve(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user == nil || user.ID != userID {
		t.Fatalf("expected user %s, got %+v", userID, user)
	}

	if err := store.Delete(ctx, session.Token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	user, err = store.Resolve(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve after delete: %v", err)
	}
	if user != nil {
		t.Fatal("deleted token must not resolve")
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, session.Token); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestResolveExpiredTokenIsLazilyDeleted(t *testing.T) {
	store, runner := testStore(t, time.Hour)
	ctx := context.Background()
	userID := seedUser(t, runner, enums.UserStatusActive)

	token := "expired-" + uuid.NewString()
	err := runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		return tx.Create(&models.Session{
			Token:     token,
			UserID:    userID,
			ExpiresAt: time.Now().UTC().Add(-time.Minute),
		}).Error
	})
	if err != nil {
		t.Fatalf("seed expired session: %v", err)
	}

	user, err := store.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user != nil {
		t.Fatal("expired token must not resolve")
	}

	var count int64
	err = runner.InScope(ctx, tenancy.PlatformScope(), func(tx *gorm.DB) error {
		return tx.Model(&models.Session{}).Where("token = ?", token).Count(&count).Error
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("expired row should have been deleted on resolve")
	}
}

func TestPersistUpsertsOnTokenValue(t *testing.T) {
	store, runner := testStore(t, time.Hour)
	ctx := context.Background()
	firstUser := seedUser(t, runner, enums.UserStatusActive)
	secondUser := seedUser(t, runner, enums.UserStatusActive)

	token := "upsert-" + uuid.NewString()
	expiry := time.Now().UTC().Add(time.Hour)
	writes := []*models.Session{
		{Token: token, UserID: firstUser, ExpiresAt: expiry},
		{Token: token, UserID: secondUser, ExpiresAt: expiry.Add(time.Hour)},
	}
	for _, session := range writes {
		if err := store.persist(ctx, session); err != nil {
			t.Fatalf("persist token for user %s: %v", session.UserID, err)
		}
	}

	user, err := store.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user == nil || user.ID != secondUser {
		t.Fatalf("repeated token must take over the row, got %+v", user)
	}

	t.Cleanup(func() {
		_ = store.Delete(ctx, token)
	})
}

func TestResolveSuspendedUser(t *testing.T) {
	store, runner := testStore(t, time.Hour)
	ctx := context.Background()
	userID := seedUser(t, runner, enums.UserStatusSuspended)

	session, err := store.Create(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	user, err := store.Resolve(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if user != nil {
		t.Fatal("suspended user's token must not resolve")
	}
}
