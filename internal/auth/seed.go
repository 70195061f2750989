package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const seedPasswordBytes = 16

// SeedUsername is the account created on first boot.
const SeedUsername = "admin"

// SeedFirstUser creates an initial account when the user table is empty so
// someone can log in and claim modules. The generated password is logged
// once and returned; it is empty when seeding was skipped.
func SeedFirstUser(ctx context.Context, users UserRepository, logger *slog.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Debug("users exist, skipping first user seed")
		return "", nil
	}

	buf := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(buf)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	if err := users.Create(ctx, &User{
		Username:     SeedUsername,
		DisplayName:  "Administrator",
		PasswordHash: hash,
		IsActive:     true,
	}); err != nil {
		return "", fmt.Errorf("creating seed user: %w", err)
	}

	logger.Warn("first user account created",
		"username", SeedUsername,
		"password", password,
		"action_required", "change this password immediately",
	)
	return password, nil
}
