package auth

import (
	"context"
	"log"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/store"
	"github.com/pkg/errors"
)

// EnsureAdmin creates a SUPERADMIN account named username unless one
// already exists. Empty credentials are a no-op.
func EnsureAdmin(ctx context.Context, users store.UserStore, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := users.FindUser(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return err
	}
	if len(password) < 6 {
		return errors.New("auth: bootstrap admin password must be at least 6 characters")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "auth: failed to hash bootstrap password")
	}
	if err := users.CreateUser(ctx, &models.AdminUser{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleSuperAdmin,
		Status:       models.StatusActive,
	}); err != nil {
		return err
	}
	log.Printf("created bootstrap admin %q", username)
	return nil
}
