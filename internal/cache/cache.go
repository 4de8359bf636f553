package cache

import (
	"context"
	"time"

	"dontendero/backend/internal/domain"
)

// ShiftCache holds the current-open-shift view keyed by operator or
// register. Mutating shift operations must invalidate both keys.
type ShiftCache interface {
	Get(ctx context.Context, key string) (*domain.CashShift, bool, error)
	Set(ctx context.Context, key string, value *domain.CashShift, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

func OperatorKey(orgID string, operator string) string {
	return "shift:op:" + orgID + ":" + operator
}

func RegisterKey(orgID string, registerID string) string {
	return "shift:reg:" + orgID + ":" + registerID
}

type NoopShiftCache struct{}

func (NoopShiftCache) Get(_ context.Context, _ string) (*domain.CashShift, bool, error) {
	return nil, false, nil
}

func (NoopShiftCache) Set(_ context.Context, _ string, _ *domain.CashShift, _ time.Duration) error {
	return nil
}

func (NoopShiftCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
