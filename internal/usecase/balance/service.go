// Package balance exposes read-only views over a tenant's credit
// account: the current balance report and the ledger history.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
)

// History paging bounds. The ceiling is configurable via WithPageMax.
const (
	defaultPageSize = 50
	defaultPageMax  = 200
)

// Report is the balance snapshot returned to callers.
type Report struct {
	TenantID            string
	PlanID              string
	SubscriptionCredits int64
	TopOffCredits       int64
	TotalCredits        int64
	MonthlyCredits      int64
	MaxJournalists      int
	MaxArticlesPerDay   int
	Status              string
	BillingCycleEnd     time.Time
	DaysUntilRenewal    int
}

// Page is one page of ledger history, newest first.
type Page struct {
	Entries    []ledger.Entry
	NextCursor string
}

// Service serves balance reports and ledger history.
type Service struct {
	repo    Repository
	catalog Catalog
	now     func() time.Time
	pageMax int
}

// New creates a balance service.
func New(repo Repository, cat Catalog) *Service {
	return &Service{repo: repo, catalog: cat, now: time.Now, pageMax: defaultPageMax}
}

// WithPageMax sets the ceiling on a single ledger history page.
func (s *Service) WithPageMax(max int) *Service {
	if max > 0 {
		s.pageMax = max
	}
	return s
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// GetBalance returns the balance report for a tenant. Returns
// domain.ErrAccountNotFound for untracked tenants.
func (s *Service) GetBalance(ctx context.Context, tenantID string) (Report, error) {
	if tenantID == "" {
		return Report{}, fmt.Errorf("tenant id is required: %w", domain.ErrValidation)
	}

	acc, err := s.repo.GetAccount(ctx, tenantID)
	if err != nil {
		return Report{}, fmt.Errorf("get account %s: %w", tenantID, err)
	}

	r := Report{
		TenantID:            acc.TenantID,
		PlanID:              acc.PlanID,
		SubscriptionCredits: acc.SubscriptionCredits,
		TopOffCredits:       acc.TopOffCredits,
		TotalCredits:        acc.Total(),
		Status:              string(acc.Status),
		BillingCycleEnd:     acc.BillingCycleEnd,
		DaysUntilRenewal:    daysUntil(s.now().UTC(), acc.BillingCycleEnd),
	}
	if plan, perr := s.catalog.Plan(acc.PlanID); perr == nil {
		r.MonthlyCredits = plan.MonthlyCredits
		r.MaxJournalists = plan.MaxJournalists
		r.MaxArticlesPerDay = plan.MaxArticlesPerDay
	}
	return r, nil
}

// ListLedger returns a page of ledger entries for a tenant, most recent
// first. cursor is opaque; an empty cursor starts at the newest entry.
func (s *Service) ListLedger(ctx context.Context, tenantID, cursor string, limit int) (Page, error) {
	if tenantID == "" {
		return Page{}, fmt.Errorf("tenant id is required: %w", domain.ErrValidation)
	}
	if limit <= 0 || limit > s.pageMax {
		limit = min(defaultPageSize, s.pageMax)
	}

	entries, next, err := s.repo.ListEntries(ctx, tenantID, cursor, limit)
	if err != nil {
		return Page{}, fmt.Errorf("list ledger for %s: %w", tenantID, err)
	}
	return Page{Entries: entries, NextCursor: next}, nil
}

// daysUntil reports whole days (rounded up) from now to end, never
// negative. A zero end means no scheduled renewal.
func daysUntil(now, end time.Time) int {
	if end.IsZero() {
		return 0
	}
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
