package payment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/example/dealshop/internal/identity"
	"github.com/example/dealshop/internal/platform/store"
)

const methodsCollection = "paymentMethods"

var (
	ErrMethodNotFound   = errors.New("payment method not found")
	ErrNotMethodOwner   = errors.New("payment method belongs to another user")
	ErrCardNumberShort  = errors.New("card number must have at least 4 digits")
	ErrCardholderNeeded = errors.New("cardholder name is required")
)

// Card type detection by issuer prefix.
var cardPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"visa", regexp.MustCompile(`^4`)},
	{"mastercard", regexp.MustCompile(`^5[1-5]`)},
	{"amex", regexp.MustCompile(`^3[47]`)},
	{"discover", regexp.MustCompile(`^6(?:011|5)`)},
}

// DetectCardType returns the issuer for a card number, or "unknown".
func DetectCardType(cardNumber string) string {
	for _, c := range cardPatterns {
		if c.pattern.MatchString(cardNumber) {
			return c.name
		}
	}
	return "unknown"
}

// Method is a stored payment method. Only the last four digits of the
// card number are ever persisted.
type Method struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	CardholderName string    `json:"cardholder_name"`
	Last4          string    `json:"last4"`
	CardType       string    `json:"card_type"`
	ExpiryMonth    int       `json:"expiry_month"`
	ExpiryYear     int       `json:"expiry_year"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
}

// Service manages a user's saved payment methods.
type Service struct {
	store    store.DocumentStore
	identity identity.Provider
}

func NewService(ds store.DocumentStore, ip identity.Provider) *Service {
	return &Service{store: ds, identity: ip}
}

// AddInput carries the full card details; everything beyond the last
// four digits is discarded before any write.
type AddInput struct {
	CardholderName string `json:"cardholder_name"`
	CardNumber     string `json:"card_number"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	IsDefault      bool   `json:"is_default"`
}

func (s *Service) Add(ctx context.Context, in AddInput) (*Method, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if in.CardholderName == "" {
		return nil, ErrCardholderNeeded
	}
	if len(in.CardNumber) < 4 {
		return nil, ErrCardNumberShort
	}

	m := Method{
		UserID:         user.ID,
		CardholderName: in.CardholderName,
		Last4:          in.CardNumber[len(in.CardNumber)-4:],
		CardType:       DetectCardType(in.CardNumber),
		ExpiryMonth:    in.ExpiryMonth,
		ExpiryYear:     in.ExpiryYear,
		IsDefault:      in.IsDefault,
	}

	doc := store.Doc(m)
	delete(doc, "id")
	doc["created_at"] = store.ServerTimestamp

	id, err := s.store.Create(ctx, methodsCollection, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to add payment method: %w", err)
	}
	m.ID = id
	return &m, nil
}

// List returns the caller's payment methods, newest first.
func (s *Service) List(ctx context.Context) ([]Method, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	var methods []Method
	err = s.store.Query(ctx, methodsCollection, store.Query{
		Filters: []store.Filter{{Field: "user_id", Value: user.ID}},
		OrderBy: "created_at",
		Desc:    true,
	}, &methods)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return methods, nil
}

// Remove deletes one of the caller's payment methods.
func (s *Service) Remove(ctx context.Context, methodID string) error {
	if _, err := s.owned(ctx, methodID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, methodsCollection, methodID); err != nil {
		return fmt.Errorf("failed to delete payment method: %w", err)
	}
	return nil
}

// SetDefault marks one method as the default and clears the flag on all
// the caller's others, in a single batch.
func (s *Service) SetDefault(ctx context.Context, methodID string) error {
	if _, err := s.owned(ctx, methodID); err != nil {
		return err
	}

	methods, err := s.List(ctx)
	if err != nil {
		return err
	}

	ops := make([]store.Op, 0, len(methods))
	for _, m := range methods {
		ops = append(ops, store.Op{
			Kind:       store.OpUpdate,
			Collection: methodsCollection,
			ID:         m.ID,
			Fields:     map[string]any{"is_default": m.ID == methodID},
		})
	}

	if err := s.store.Transact(ctx, ops); err != nil {
		return fmt.Errorf("failed to set default payment method: %w", err)
	}
	return nil
}

func (s *Service) owned(ctx context.Context, methodID string) (*Method, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	var m Method
	err = s.store.Get(ctx, methodsCollection, methodID, &m)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMethodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment method: %w", err)
	}
	if m.UserID != user.ID {
		return nil, ErrNotMethodOwner
	}
	return &m, nil
}
