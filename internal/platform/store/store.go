package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrNotFound = errors.New("document not found")

// serverTimestamp is the sentinel type behind ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp marks a field whose value is assigned by the store
// adapter at write time instead of the caller's clock.
var ServerTimestamp serverTimestamp

// Filter matches documents whose field equals the given value.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from a collection.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

type OpKind int

const (
	OpSet OpKind = iota
	OpUpdate
	OpDelete
)

// Op is a single write inside a Transact batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Doc        map[string]any // OpSet
	Fields     map[string]any // OpUpdate
}

// DocumentStore is the persistence boundary: documents addressed by
// collection and identifier, with whole-document and field-level writes.
// Transact applies all ops atomically or none of them.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, out any) error
	Set(ctx context.Context, collection, id string, doc any) error
	UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error
	Create(ctx context.Context, collection string, doc any) (string, error)
	Query(ctx context.Context, collection string, q Query, out any) error
	Delete(ctx context.Context, collection, id string) error
	Transact(ctx context.Context, ops []Op) error
}

// Doc converts a struct into the map form accepted by Set and Transact.
// Callers may then overlay sentinel values such as ServerTimestamp.
func Doc(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// resolveTimestamps replaces ServerTimestamp sentinels with the adapter
// clock. Returns a copy; the input map is not modified.
func resolveTimestamps(fields map[string]any, now time.Time) map[string]any {
	resolved := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			resolved[k] = now.UTC()
		} else {
			resolved[k] = v
		}
	}
	return resolved
}

// document pairs an identifier with its decoded body.
type document struct {
	id   string
	data map[string]any
}

// applyQuery filters, orders and limits decoded documents. Adapters that
// cannot push the full query down to the backend fall back to this.
func applyQuery(docs []document, q Query) []document {
	matched := make([]document, 0, len(docs))
	for _, d := range docs {
		if matchesFilters(d.data, q.Filters) {
			matched = append(matched, d)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			less := compareValues(matched[i].data[q.OrderBy], matched[j].data[q.OrderBy]) < 0
			if q.Desc {
				return !less
			}
			return less
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

func matchesFilters(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !valuesEqual(data[f.Field], f.Value) {
			return false
		}
	}
	return true
}

// valuesEqual compares through JSON normalization so that int filters
// match float64 document values and time.Time matches RFC3339 strings.
func valuesEqual(a, b any) bool {
	return normalize(a) == normalize(b)
}

func compareValues(a, b any) int {
	na, nb := normalize(a), normalize(b)
	switch x := na.(type) {
	case float64:
		y, ok := nb.(float64)
		if !ok {
			return strings.Compare(fmt.Sprint(na), fmt.Sprint(nb))
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case string:
		y, ok := nb.(string)
		if !ok {
			return strings.Compare(fmt.Sprint(na), fmt.Sprint(nb))
		}
		return strings.Compare(x, y)
	default:
		return strings.Compare(fmt.Sprint(na), fmt.Sprint(nb))
	}
}

// normalize reduces a value to the types JSON decoding produces:
// float64 for numbers, RFC3339 strings for times, bool and string as-is.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string:
		return x
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Sprint(v)
		}
		if s, ok := out.(string); ok {
			return s
		}
		if f, ok := out.(float64); ok {
			return f
		}
		return string(data)
	}
}

// decodeDoc unmarshals a document body into out, injecting the id so
// callers see it as a regular field.
func decodeDoc(id string, data map[string]any, out any) error {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["id"] = id

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return nil
}

// decodeDocs unmarshals a slice of documents into out, which must be a
// pointer to a slice.
func decodeDocs(docs []document, out any) error {
	bodies := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		body := make(map[string]any, len(d.data)+1)
		for k, v := range d.data {
			body[k] = v
		}
		body["id"] = d.id
		bodies = append(bodies, body)
	}

	raw, err := json.Marshal(bodies)
	if err != nil {
		return fmt.Errorf("failed to marshal documents: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode documents: %w", err)
	}
	return nil
}
