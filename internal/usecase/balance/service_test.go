package balance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
)

// --- Mocks ---

type mockRepo struct {
	getFn  func(ctx context.Context, tenantID string) (account.Account, error)
	listFn func(ctx context.Context, tenantID, cursor string, limit int) ([]ledger.Entry, string, error)
}

func (m *mockRepo) GetAccount(ctx context.Context, tenantID string) (account.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tenantID)
	}
	return account.Account{}, nil
}

func (m *mockRepo) ListEntries(ctx context.Context, tenantID, cursor string, limit int) ([]ledger.Entry, string, error) {
	if m.listFn != nil {
		return m.listFn(ctx, tenantID, cursor, limit)
	}
	return nil, "", nil
}

func newTestService(t *testing.T) (*Service, *mockRepo) {
	t.Helper()
	mr := &mockRepo{}
	return New(mr, catalog.Default()), mr
}

// --- GetBalance ---

func TestGetBalance_HappyPath(t *testing.T) {
	svc, mr := newTestService(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	mr.getFn = func(_ context.Context, tenantID string) (account.Account, error) {
		if tenantID != "ten-1" {
			t.Errorf("unexpected tenant: %s", tenantID)
		}
		return account.Account{
			TenantID:            "ten-1",
			PlanID:              "growth",
			SubscriptionCredits: 200,
			TopOffCredits:       30,
			Status:              account.StatusActive,
			BillingCycleEnd:     now.Add(36 * time.Hour),
		}, nil
	}

	r, err := svc.GetBalance(context.Background(), "ten-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalCredits != 230 {
		t.Errorf("expected total 230, got %d", r.TotalCredits)
	}
	if r.MonthlyCredits != 575 || r.MaxJournalists != 3 || r.MaxArticlesPerDay != 20 {
		t.Errorf("plan limits not resolved: %+v", r)
	}
	if r.DaysUntilRenewal != 2 {
		t.Errorf("36h away must round up to 2 days, got %d", r.DaysUntilRenewal)
	}
}

func TestGetBalance_NotFound(t *testing.T) {
	svc, mr := newTestService(t)
	mr.getFn = func(_ context.Context, _ string) (account.Account, error) {
		return account.Account{}, domain.ErrAccountNotFound
	}

	_, err := svc.GetBalance(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestGetBalance_UnknownPlanOmitsLimits(t *testing.T) {
	svc, mr := newTestService(t)
	mr.getFn = func(_ context.Context, _ string) (account.Account, error) {
		return account.Account{TenantID: "ten-1", PlanID: "legacy", SubscriptionCredits: 10}, nil
	}

	r, err := svc.GetBalance(context.Background(), "ten-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.MonthlyCredits != 0 {
		t.Errorf("unknown plan must not invent limits, got %d", r.MonthlyCredits)
	}
	if r.TotalCredits != 10 {
		t.Errorf("balance must still be reported, got %d", r.TotalCredits)
	}
}

func TestGetBalance_EmptyTenant(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.GetBalance(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// --- daysUntil ---

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{"zero end", time.Time{}, 0},
		{"past", now.Add(-time.Hour), 0},
		{"exact days", now.AddDate(0, 0, 7), 7},
		{"partial day rounds up", now.Add(25 * time.Hour), 2},
	}
	for _, tt := range tests {
		if got := daysUntil(now, tt.end); got != tt.want {
			t.Errorf("%s: daysUntil = %d, want %d", tt.name, got, tt.want)
		}
	}
}

// --- ListLedger ---

func TestListLedger_ClampsLimit(t *testing.T) {
	svc, mr := newTestService(t)

	var gotLimit int
	mr.listFn = func(_ context.Context, _, _ string, limit int) ([]ledger.Entry, string, error) {
		gotLimit = limit
		return nil, "", nil
	}

	if _, err := svc.ListLedger(context.Background(), "ten-1", "", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 50 {
		t.Errorf("expected default limit 50, got %d", gotLimit)
	}

	if _, err := svc.ListLedger(context.Background(), "ten-1", "", 9999); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 50 {
		t.Errorf("oversized limit must fall back to default, got %d", gotLimit)
	}
}

func TestListLedger_ConfiguredPageMax(t *testing.T) {
	svc, mr := newTestService(t)
	svc.WithPageMax(25)

	var gotLimit int
	mr.listFn = func(_ context.Context, _, _ string, limit int) ([]ledger.Entry, string, error) {
		gotLimit = limit
		return nil, "", nil
	}

	if _, err := svc.ListLedger(context.Background(), "ten-1", "", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 25 {
		t.Errorf("limit above the configured ceiling must clamp to it, got %d", gotLimit)
	}

	if _, err := svc.ListLedger(context.Background(), "ten-1", "", 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 20 {
		t.Errorf("limit within the ceiling must pass through, got %d", gotLimit)
	}
}

func TestListLedger_PassesCursorThrough(t *testing.T) {
	svc, mr := newTestService(t)

	mr.listFn = func(_ context.Context, tenantID, cursor string, limit int) ([]ledger.Entry, string, error) {
		if cursor != "40" {
			t.Errorf("unexpected cursor: %q", cursor)
		}
		return []ledger.Entry{{ID: "e-1"}}, "60", nil
	}

	page, err := svc.ListLedger(context.Background(), "ten-1", "40", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Entries) != 1 || page.NextCursor != "60" {
		t.Errorf("unexpected page: %+v", page)
	}
}
