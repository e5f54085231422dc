package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
	domledger "github.com/newsroom-hq/creditledger/internal/domain/ledger"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hgetAllFn func(ctx context.Context, key string) (map[string]string, error)
	getFn     func(ctx context.Context, key string) ([]byte, error)
	setFn     func(ctx context.Context, key string, value []byte) error
	lrangeFn  func(ctx context.Context, key string, start, stop int64) ([]string, error)
	llenFn    func(ctx context.Context, key string) (int64, error)
	evalFn    func(ctx context.Context, src string, keys, args []string) (string, error)
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func (m *mockStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if m.lrangeFn != nil {
		return m.lrangeFn(ctx, key, start, stop)
	}
	return nil, nil
}

func (m *mockStore) LLen(ctx context.Context, key string) (int64, error) {
	if m.llenFn != nil {
		return m.llenFn(ctx, key)
	}
	return 0, nil
}

func (m *mockStore) Eval(ctx context.Context, src string, keys, args []string) (string, error) {
	if m.evalFn != nil {
		return m.evalFn(ctx, src, keys, args)
	}
	return "OK", nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms), ms
}

func testAccountFields(t *testing.T) map[string]string {
	t.Helper()
	acc := account.Account{
		TenantID:            "ten-1",
		PlanID:              "starter",
		SubscriptionCredits: 100,
		TopOffCredits:       25,
		Status:              account.StatusActive,
		BillingCycleStart:   time.UnixMilli(1700000000000).UTC(),
		BillingCycleEnd:     time.UnixMilli(1702592000000).UTC(),
		Version:             3,
		CreatedAt:           time.UnixMilli(1690000000000).UTC(),
		UpdatedAt:           time.UnixMilli(1700000000000).UTC(),
	}
	return accountToFields(&acc)
}

func testEntry(t *testing.T, id string, amount int64) domledger.Entry {
	t.Helper()
	return domledger.Entry{
		ID:           id,
		TenantID:     "ten-1",
		Type:         domledger.TypeUsage,
		Pool:         domledger.PoolSubscription,
		Amount:       amount,
		BalanceAfter: 100 + amount,
		Description:  "test entry",
		CreatedAt:    time.UnixMilli(1700000001000).UTC(),
	}
}
