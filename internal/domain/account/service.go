package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/example/dealshop/internal/analytics"
	"github.com/example/dealshop/internal/auth"
	"github.com/example/dealshop/internal/domain/cart"
	"github.com/example/dealshop/internal/platform/store"
)

const (
	usersCollection         = "users"
	resetsCollection        = "passwordResets"
	subscriptionsCollection = "emailSubscriptions"

	// EventSignUp and EventNewsletterSignup are the analytics events
	// emitted by account operations.
	EventSignUp           = "sign_up"
	EventNewsletterSignup = "newsletter_signup"

	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	resetTokenTTL = 1 * time.Hour
)

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrResetTokenInvalid  = errors.New("reset token is invalid or expired")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User is the account document. The cart field belongs to the cart
// reconciler; account operations only ever initialize it.
type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	PasswordHash string      `json:"password_hash"`
	Cart         []cart.Item `json:"cart"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Mailer sends account-related mail. Failures are logged, never
// surfaced to the caller.
type Mailer interface {
	SendPasswordReset(to, token string) error
}

// Service owns the account lifecycle: registration, credential checks,
// password resets and newsletter subscriptions.
type Service struct {
	store     store.DocumentStore
	analytics analytics.Sink
	mailer    Mailer
}

func NewService(ds store.DocumentStore, sink analytics.Sink, mailer Mailer) *Service {
	return &Service{store: ds, analytics: sink, mailer: mailer}
}

// Register creates a new account with an empty cart. The password is
// stored only as a bcrypt hash.
func (s *Service) Register(ctx context.Context, email, password, name string) (*User, error) {
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	if _, err := s.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		Role:         RoleCustomer,
		PasswordHash: hash,
		Cart:         []cart.Item{},
	}

	doc := store.Doc(user)
	doc["created_at"] = store.ServerTimestamp

	if err := s.store.Set(ctx, usersCollection, user.ID, doc); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.analytics.LogEvent(ctx, EventSignUp, map[string]any{"method": "password"})

	return &user, nil
}

// Authenticate verifies an email/password pair and returns the account.
// A missing user and a wrong password return the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// FindByEmail returns the account registered under an email address.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	var users []User
	err := s.store.Query(ctx, usersCollection, store.Query{
		Filters: []store.Filter{{Field: "email", Value: email}},
		Limit:   1,
	}, &users)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}
	return &users[0], nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.store.Get(ctx, usersCollection, userID, &user)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// resetDoc stores only the token hash, never the token itself.
type resetDoc struct {
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

// RequestPasswordReset issues a reset token and mails it to the account
// holder. An unknown email succeeds silently so the endpoint cannot be
// used to probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}

	user, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token := uuid.New().String()
	_, err = s.store.Create(ctx, resetsCollection, resetDoc{
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(resetTokenTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendPasswordReset(user.Email, token); err != nil {
			log.Printf("[Account] Failed to send reset email to %s: %v", user.Email, err)
		}
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	var resets []struct {
		resetDoc
		ID string `json:"id"`
	}
	err := s.store.Query(ctx, resetsCollection, store.Query{
		Filters: []store.Filter{{Field: "token_hash", Value: hashToken(token)}},
		Limit:   1,
	}, &resets)
	if err != nil {
		return fmt.Errorf("failed to look up reset token: %w", err)
	}
	if len(resets) == 0 || resets[0].Used || time.Now().After(resets[0].ExpiresAt) {
		return ErrResetTokenInvalid
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.store.Transact(ctx, []store.Op{
		{
			Kind:       store.OpUpdate,
			Collection: usersCollection,
			ID:         resets[0].UserID,
			Fields:     map[string]any{"password_hash": hash},
		},
		{
			Kind:       store.OpUpdate,
			Collection: resetsCollection,
			ID:         resets[0].ID,
			Fields:     map[string]any{"used": true},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	return nil
}

// Subscribe records a newsletter subscription.
func (s *Service) Subscribe(ctx context.Context, email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}

	_, err := s.store.Create(ctx, subscriptionsCollection, map[string]any{
		"email":         email,
		"subscribed_at": store.ServerTimestamp,
		"active":        true,
	})
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	s.analytics.LogEvent(ctx, EventNewsletterSignup, map[string]any{"email": email})
	return nil
}

// hashToken creates a SHA-256 hash of the token for secure storage
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
