package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
)

// --- Mocks ---

type mockRepo struct {
	createFn func(ctx context.Context, acc account.Account, initial []ledger.Entry) error
}

func (m *mockRepo) CreateAccount(ctx context.Context, acc account.Account, initial []ledger.Entry) error {
	if m.createFn != nil {
		return m.createFn(ctx, acc, initial)
	}
	return nil
}

type mockSink struct {
	events []events.Event
}

func (m *mockSink) Enqueue(ev events.Event) bool {
	m.events = append(m.events, ev)
	return true
}

// --- Tests ---

func TestCreate_HappyPath(t *testing.T) {
	mr := &mockRepo{}
	sink := &mockSink{}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := New(mr, catalog.Default()).
		WithEventSink(sink).
		WithClock(func() time.Time { return now })

	var gotAcc account.Account
	var gotInitial []ledger.Entry
	mr.createFn = func(_ context.Context, acc account.Account, initial []ledger.Entry) error {
		gotAcc = acc
		gotInitial = initial
		return nil
	}

	acc, err := svc.Create(context.Background(), CreateInput{TenantID: "ten-1", PlanID: "starter"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.SubscriptionCredits != 150 || acc.Status != account.StatusActive {
		t.Errorf("unexpected account: %+v", acc)
	}
	if gotAcc.BillingCycleStart != now || gotAcc.BillingCycleEnd != now.AddDate(0, 1, 0) {
		t.Errorf("unexpected cycle: %v .. %v", gotAcc.BillingCycleStart, gotAcc.BillingCycleEnd)
	}

	if len(gotInitial) != 1 {
		t.Fatalf("expected initial allocation, got %d entries", len(gotInitial))
	}
	e := gotInitial[0]
	if e.Type != ledger.TypeAllocation || e.Pool != ledger.PoolSubscription || e.Amount != 150 {
		t.Errorf("unexpected allocation: %+v", e)
	}
	if e.BalanceAfter != 150 {
		t.Errorf("expected balance 150 after allocation, got %d", e.BalanceAfter)
	}
	if len(sink.events) != 1 {
		t.Errorf("expected 1 event, got %d", len(sink.events))
	}
}

func TestCreate_DefaultsToTrial(t *testing.T) {
	mr := &mockRepo{}
	svc := New(mr, catalog.Default())

	var gotAcc account.Account
	mr.createFn = func(_ context.Context, acc account.Account, _ []ledger.Entry) error {
		gotAcc = acc
		return nil
	}

	if _, err := svc.Create(context.Background(), CreateInput{TenantID: "ten-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAcc.PlanID != "trial" || gotAcc.SubscriptionCredits != 60 {
		t.Errorf("expected trial defaults, got %+v", gotAcc)
	}
}

func TestCreate_AlreadyExists(t *testing.T) {
	mr := &mockRepo{}
	svc := New(mr, catalog.Default())
	mr.createFn = func(_ context.Context, _ account.Account, _ []ledger.Entry) error {
		return domain.ErrAccountExists
	}

	_, err := svc.Create(context.Background(), CreateInput{TenantID: "ten-1"})
	if !errors.Is(err, domain.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestCreate_UnknownPlan(t *testing.T) {
	svc := New(&mockRepo{}, catalog.Default())

	_, err := svc.Create(context.Background(), CreateInput{TenantID: "ten-1", PlanID: "platinum"})
	if !errors.Is(err, domain.ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
}

func TestCreate_EmptyTenant(t *testing.T) {
	svc := New(&mockRepo{}, catalog.Default())

	_, err := svc.Create(context.Background(), CreateInput{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
