package gate

import (
	"context"
	"testing"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
)

// mockAccounts implements AccountReader for tests.
type mockAccounts struct {
	getFn func(ctx context.Context, tenantID string) (account.Account, error)
}

func (m *mockAccounts) GetAccount(ctx context.Context, tenantID string) (account.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tenantID)
	}
	return account.Account{}, nil
}

func newTestService(t *testing.T) (*Service, *mockAccounts) {
	t.Helper()
	ma := &mockAccounts{}
	return New(ma, catalog.Default()), ma
}
