package auth

import (
	"context"
	"testing"

	"github.com/wavehub/pincore/internal/infrastructure/database"
	_ "github.com/wavehub/pincore/migrations"
)

// testDB opens an in-memory database with the full schema applied.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

// seedTestUser inserts an active user with password "test-password".
func seedTestUser(t *testing.T, repo UserRepository, username string) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &User{Username: username, PasswordHash: hash, IsActive: true}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// fakeMembership is an in-memory Membership.
type fakeMembership struct {
	roles map[string]Role
}

func (f fakeMembership) RoleOf(userID string) (Role, bool) {
	r, ok := f.roles[userID]
	return r, ok
}

func (f fakeMembership) HasOwner() bool {
	for _, r := range f.roles {
		if r == RoleOwner {
			return true
		}
	}
	return false
}
