// Package tabletag keeps the free-text table annotation of dine-in orders
// outside the order repository, keyed by order id.
package tabletag

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/kv"
)

const keyPrefix = "table:"

// Store maps order ids to table annotations.
type Store struct {
	kv kv.Store
}

func New(store kv.Store) *Store {
	return &Store{kv: store}
}

func key(orderID uuid.UUID) string { return keyPrefix + orderID.String() }

// Set stores the trimmed value, or removes the key when it trims to empty.
func (s *Store) Set(ctx context.Context, orderID uuid.UUID, value string) error {
	v := strings.TrimSpace(value)
	if v == "" {
		return s.kv.Delete(ctx, key(orderID))
	}
	return s.kv.Set(ctx, key(orderID), v)
}

// Get returns the annotation and whether one exists.
func (s *Store) Get(ctx context.Context, orderID uuid.UUID) (string, bool, error) {
	return s.kv.Get(ctx, key(orderID))
}

func (s *Store) Delete(ctx context.Context, orderID uuid.UUID) error {
	return s.kv.Delete(ctx, key(orderID))
}
