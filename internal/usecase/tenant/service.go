// Package tenant provisions credit accounts: one account per tenant,
// created with its plan's first monthly allocation already on the books.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
)

// DefaultPlanID is used when provisioning does not name a plan.
const DefaultPlanID = "trial"

// CreateInput describes a tenant to provision.
type CreateInput struct {
	TenantID           string
	PlanID             string
	ExternalCustomerID string
}

// Service provisions tenant credit accounts.
type Service struct {
	repo    Repository
	catalog Catalog
	sink    EventSink
	now     func() time.Time
}

// New creates a tenant service.
func New(repo Repository, cat Catalog) *Service {
	return &Service{repo: repo, catalog: cat, now: time.Now}
}

// WithEventSink sets the out-of-band event sink. sink may be nil.
func (s *Service) WithEventSink(sink EventSink) *Service {
	s.sink = sink
	return s
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Create provisions a credit account for a tenant with the plan's full
// monthly allocation in the subscription pool. Returns
// domain.ErrAccountExists if the tenant already has one and
// domain.ErrUnknownPlan for a plan the catalog does not carry.
func (s *Service) Create(ctx context.Context, in CreateInput) (account.Account, error) {
	if in.TenantID == "" {
		return account.Account{}, fmt.Errorf("tenant id is required: %w", domain.ErrValidation)
	}
	planID := in.PlanID
	if planID == "" {
		planID = DefaultPlanID
	}
	plan, err := s.catalog.Plan(planID)
	if err != nil {
		return account.Account{}, err
	}

	now := s.now().UTC()
	acc := account.Account{
		TenantID:            in.TenantID,
		PlanID:              plan.ID,
		SubscriptionCredits: plan.MonthlyCredits,
		Status:              account.StatusActive,
		BillingCycleStart:   now,
		BillingCycleEnd:     now.AddDate(0, 1, 0),
		ExternalCustomerID:  in.ExternalCustomerID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	initial := ledger.Entry{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		Type:         ledger.TypeAllocation,
		Pool:         ledger.PoolSubscription,
		Amount:       plan.MonthlyCredits,
		BalanceAfter: plan.MonthlyCredits,
		Description:  fmt.Sprintf("initial allocation for plan %s", plan.ID),
		CreatedAt:    now,
	}

	if err := s.repo.CreateAccount(ctx, acc, []ledger.Entry{initial}); err != nil {
		return account.Account{}, fmt.Errorf("create account %s: %w", in.TenantID, err)
	}

	if s.sink != nil {
		s.sink.Enqueue(events.Event{
			Kind:         events.KindEntryCommitted,
			TenantID:     initial.TenantID,
			EntryID:      initial.ID,
			EntryType:    string(initial.Type),
			Pool:         string(initial.Pool),
			Amount:       initial.Amount,
			BalanceAfter: initial.BalanceAfter,
			OccurredAt:   initial.CreatedAt,
		})
	}

	acc.Version = 1
	return acc, nil
}
