package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/dealshop/internal/analytics"
	"github.com/example/dealshop/internal/identity"
	"github.com/example/dealshop/internal/platform/store"
)

const (
	usersCollection = "users"

	// EventAddToCart is the analytics event emitted on every successful add.
	EventAddToCart = "add_to_cart"

	defaultImage = "https://via.placeholder.com/100"
)

var ErrEmptyName = errors.New("item name is required")

// Item is one line of a cart. Items are identified by Name: a cart never
// holds two entries with the same name.
type Item struct {
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	AddedAt     time.Time `json:"added_at"`
}

// cartDoc is the slice of the user document the reconciler reads.
type cartDoc struct {
	Cart []Item `json:"cart"`
}

// Service reconciles cart mutations against the cart field of the
// owner's user document. All collaborators are injected.
type Service struct {
	store     store.DocumentStore
	identity  identity.Provider
	analytics analytics.Sink
}

func NewService(ds store.DocumentStore, ip identity.Provider, sink analytics.Sink) *Service {
	return &Service{store: ds, identity: ip, analytics: sink}
}

// AddItem merges one unit of the named item into the caller's cart and
// persists the result. An existing entry with the same name has its
// quantity incremented; its price, image and description keep the values
// from the first add. Requires an authenticated identity; there is no
// guest cart.
func (s *Service) AddItem(ctx context.Context, name string, price float64, image, description string) ([]Item, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	if image == "" {
		image = defaultImage
	}

	items, err := s.loadItems(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	items = Merge(items, Item{
		Name:        name,
		Price:       price,
		Image:       image,
		Description: description,
		Quantity:    1,
		AddedAt:     time.Now(),
	})

	// Persist only the cart field. Concurrent writers from other devices
	// still race at this granularity, but the rest of the user document
	// is never clobbered.
	if err := s.saveItems(ctx, user.ID, items); err != nil {
		return nil, err
	}

	s.analytics.LogEvent(ctx, EventAddToCart, map[string]any{
		"item_name": name,
		"price":     price,
	})

	return items, nil
}

// Merge folds one added unit into a cart, keeping at most one entry per
// name. Pure; the input slice is returned mutated or extended.
func Merge(items []Item, added Item) []Item {
	for i := range items {
		if items[i].Name == added.Name {
			items[i].Quantity++
			return items
		}
	}
	return append(items, added)
}

// Load returns the caller's current cart. A user document without a
// cart field, or not yet written, reads as an empty cart.
func (s *Service) Load(ctx context.Context) ([]Item, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadItems(ctx, user.ID)
}

// TotalItemCount returns the sum of quantities across the caller's cart,
// zero for an empty or absent cart. Drives the cart badge.
func (s *Service) TotalItemCount(ctx context.Context) (int, error) {
	items, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	return CountItems(items), nil
}

// CountItems sums the quantities of a cart.
func CountItems(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

func (s *Service) loadItems(ctx context.Context, userID string) ([]Item, error) {
	var doc cartDoc
	err := s.store.Get(ctx, usersCollection, userID, &doc)
	if errors.Is(err, store.ErrNotFound) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if doc.Cart == nil {
		return []Item{}, nil
	}
	return doc.Cart, nil
}

func (s *Service) saveItems(ctx context.Context, userID string, items []Item) error {
	fields := map[string]any{
		"cart":         items,
		"last_updated": store.ServerTimestamp,
	}
	err := s.store.UpdateFields(ctx, usersCollection, userID, fields)
	if errors.Is(err, store.ErrNotFound) {
		// No user document yet: seed one holding just the cart fields.
		err = s.store.Set(ctx, usersCollection, userID, fields)
	}
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// ClearOps returns the transaction ops that empty a user's cart. The
// order transition composes these with the order write so both commit
// or neither does.
func ClearOps(userID string) []store.Op {
	return []store.Op{{
		Kind:       store.OpUpdate,
		Collection: usersCollection,
		ID:         userID,
		Fields: map[string]any{
			"cart":         []Item{},
			"last_updated": store.ServerTimestamp,
		},
	}}
}
