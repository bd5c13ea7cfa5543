package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/dealshop/internal/platform/store"
)

const (
	productsCollection = "products"

	defaultImage    = "https://via.placeholder.com/300"
	defaultCategory = "general"
	featuredLimit   = 6
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrNameRequired      = errors.New("product name is required")
	ErrInvalidPrice      = errors.New("price must not be negative")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is a catalog entry.
type Product struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Price           float64   `json:"price"`
	OriginalPrice   float64   `json:"original_price"`
	Discount        int       `json:"discount"`
	Image           string    `json:"image"`
	Category        string    `json:"category"`
	Stock           int       `json:"stock"`
	KlarnaAvailable bool      `json:"klarna_available"`
	Featured        bool      `json:"featured"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Service manages the product catalog.
type Service struct {
	store store.DocumentStore
}

func NewService(ds store.DocumentStore) *Service {
	return &Service{store: ds}
}

// CreateInput carries the fields a new product is built from. Zero
// values fall back to catalog defaults.
type CreateInput struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	OriginalPrice   float64 `json:"original_price"`
	Discount        int     `json:"discount"`
	Image           string  `json:"image"`
	Category        string  `json:"category"`
	Stock           int     `json:"stock"`
	KlarnaAvailable *bool   `json:"klarna_available"`
	Featured        bool    `json:"featured"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	if in.Name == "" {
		return nil, ErrNameRequired
	}
	if in.Price < 0 {
		return nil, ErrInvalidPrice
	}
	if in.Image == "" {
		in.Image = defaultImage
	}
	if in.Category == "" {
		in.Category = defaultCategory
	}
	if in.OriginalPrice == 0 {
		in.OriginalPrice = in.Price
	}
	klarna := true
	if in.KlarnaAvailable != nil {
		klarna = *in.KlarnaAvailable
	}

	p := Product{
		Name:            in.Name,
		Description:     in.Description,
		Price:           in.Price,
		OriginalPrice:   in.OriginalPrice,
		Discount:        in.Discount,
		Image:           in.Image,
		Category:        in.Category,
		Stock:           in.Stock,
		KlarnaAvailable: klarna,
		Featured:        in.Featured,
	}

	doc := store.Doc(p)
	delete(doc, "id")
	doc["created_at"] = store.ServerTimestamp
	doc["updated_at"] = store.ServerTimestamp

	id, err := s.store.Create(ctx, productsCollection, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	p.ID = id
	return &p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := s.store.Get(ctx, productsCollection, id, &p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// Update applies a partial field update. The id and created_at fields
// are never touched; updated_at is stamped by the store.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) error {
	delete(fields, "id")
	delete(fields, "created_at")
	fields["updated_at"] = store.ServerTimestamp

	err := s.store.UpdateFields(ctx, productsCollection, id, fields)
	if errors.Is(err, store.ErrNotFound) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, productsCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// ListAll returns the catalog, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Product, error) {
	return s.list(ctx, store.Query{OrderBy: "created_at", Desc: true})
}

// ListFeatured returns up to six featured products.
func (s *Service) ListFeatured(ctx context.Context) ([]Product, error) {
	return s.list(ctx, store.Query{
		Filters: []store.Filter{{Field: "featured", Value: true}},
		Limit:   featuredLimit,
	})
}

// ListByCategory returns the products in one category.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]Product, error) {
	return s.list(ctx, store.Query{
		Filters: []store.Filter{{Field: "category", Value: category}},
	})
}

// Search matches the term case-insensitively against name, description
// and category.
func (s *Service) Search(ctx context.Context, term string) ([]Product, error) {
	products, err := s.list(ctx, store.Query{})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(term)
	matched := make([]Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) ||
			strings.Contains(strings.ToLower(p.Category), needle) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// AdjustStock adds delta (negative to consume) to a product's stock.
// A delta that would drive stock negative is rejected with no write.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	newStock := p.Stock + delta
	if newStock < 0 {
		return fmt.Errorf("%w: have %d, requested %d", ErrInsufficientStock, p.Stock, -delta)
	}

	return s.Update(ctx, id, map[string]any{"stock": newStock})
}

func (s *Service) list(ctx context.Context, q store.Query) ([]Product, error) {
	var products []Product
	if err := s.store.Query(ctx, productsCollection, q, &products); err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	return products, nil
}
