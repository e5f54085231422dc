// Package deduct implements the deduction engine: atomic post-hoc
// consumption of credits. Deduction always succeeds for a known tenant;
// when both pools run dry the shortfall is recorded as overage instead of
// failing the caller, because the AI action has already executed.
package deduct

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
	"github.com/newsroom-hq/creditledger/internal/logger"
	"github.com/newsroom-hq/creditledger/internal/metrics"
)

// maxQuantity bounds a single deduction so the credit total cannot
// overflow int64 arithmetic.
const maxQuantity = 1_000_000

// Result is the outcome of a deduction.
// CreditsRemaining is -1 for untracked tenants.
type Result struct {
	Success          bool
	CreditsRequired  int64
	CreditsDeducted  int64
	CreditsRemaining int64
	Status           account.Status
	IsOverage        bool
}

// Service handles credit consumption.
type Service struct {
	repo         Repository
	catalog      Catalog
	sink         EventSink
	maxAttempts  uint
	retryBase    time.Duration
	warnFraction float64
}

// New creates a deduction service.
func New(repo Repository, cat Catalog) *Service {
	return &Service{
		repo:         repo,
		catalog:      cat,
		maxAttempts:  5,
		retryBase:    20 * time.Millisecond,
		warnFraction: 0.15,
	}
}

// WithEventSink sets the out-of-band event sink. sink may be nil.
func (s *Service) WithEventSink(sink EventSink) *Service {
	s.sink = sink
	return s
}

// WithRetry configures the conflict retry policy.
func (s *Service) WithRetry(maxAttempts uint, base time.Duration) *Service {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if base > 0 {
		s.retryBase = base
	}
	return s
}

// WithWarnFraction sets the soft-limit threshold as a fraction of the
// plan's monthly credits.
func (s *Service) WithWarnFraction(f float64) *Service {
	if f > 0 && f < 1 {
		s.warnFraction = f
	}
	return s
}

// Deduct consumes credits for quantity units of action. Subscription
// credits drain first, then top-off. Version conflicts retry with bounded
// exponential backoff; on a tenant with no ledger record a non-balance
// usage entry is appended and the call succeeds with remaining -1.
func (s *Service) Deduct(ctx context.Context, tenantID, action string, quantity int64, description string) (Result, error) {
	if tenantID == "" || action == "" {
		return Result{}, fmt.Errorf("tenant id and action are required: %w", domain.ErrValidation)
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > maxQuantity {
		return Result{}, fmt.Errorf("quantity must be between 1 and %d: %w", maxQuantity, domain.ErrValidation)
	}

	cost, err := s.catalog.Cost(action)
	if err != nil {
		metrics.DeductionsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	required := cost * quantity
	if cost != 0 && required/quantity != cost {
		return Result{}, fmt.Errorf("credit total overflows for quantity %d: %w", quantity, domain.ErrValidation)
	}
	if description == "" {
		description = action
	}

	acc, entries, err := s.applyWithRetry(ctx, tenantID, required, description)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return s.recordUntracked(ctx, tenantID, action, required, description)
		}
		metrics.DeductionsTotal.WithLabelValues("error").Inc()
		logger.FromContext(ctx).Error("deduction failed",
			zap.String("tenant_id", tenantID),
			zap.String("action", action),
			zap.Int64("required", required),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("deduct %d credits for tenant %s: %w", required, tenantID, err)
	}

	var deducted int64
	for i := range entries {
		deducted += -entries[i].Amount
		s.publish(entries[i])
	}

	result := Result{
		Success:          true,
		CreditsRequired:  required,
		CreditsDeducted:  deducted,
		CreditsRemaining: acc.Total(),
		Status:           acc.Status,
		IsOverage:        deducted < required,
	}

	metrics.CreditsConsumedTotal.Add(float64(deducted))
	if result.IsOverage {
		metrics.DeductionsTotal.WithLabelValues("overage").Inc()
	} else {
		metrics.DeductionsTotal.WithLabelValues("ok").Inc()
	}
	return result, nil
}

// applyWithRetry runs the optimistic write cycle, retrying only on
// version conflicts.
func (s *Service) applyWithRetry(ctx context.Context, tenantID string, required int64, description string) (
	account.Account, []ledger.Entry, error,
) {
	type applied struct {
		acc     account.Account
		entries []ledger.Entry
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryBase

	out, err := backoff.Retry(ctx, func() (applied, error) {
		acc, entries, err := s.repo.Apply(ctx, tenantID, func(acc *account.Account) ([]ledger.Entry, error) {
			return s.consume(acc, required, description), nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				metrics.VersionConflictsTotal.Inc()
				return applied{}, err
			}
			return applied{}, backoff.Permanent(err)
		}
		return applied{acc: acc, entries: entries}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(s.maxAttempts))
	if err != nil {
		return account.Account{}, nil, err
	}
	return out.acc, out.entries, nil
}

// consume drains the pools and builds the usage entries: one per pool
// touched, committed atomically, so per-pool ledger sums always reconcile.
func (s *Service) consume(acc *account.Account, required int64, description string) []ledger.Entry {
	fromSub, fromTop, shortfall := acc.Consume(required)
	acc.RecomputeStatus(s.warnBelow(acc.PlanID))

	now := time.Now().UTC()
	total := acc.Total()

	desc := description
	if shortfall > 0 {
		desc = fmt.Sprintf("%s (overage: %d credits uncovered)", description, shortfall)
	}

	var entries []ledger.Entry
	if fromSub > 0 || (fromSub == 0 && fromTop == 0) {
		// The zero-amount entry keeps overage on an empty account visible
		// in the transaction log.
		entries = append(entries, ledger.Entry{
			ID:           uuid.NewString(),
			TenantID:     acc.TenantID,
			Type:         ledger.TypeUsage,
			Pool:         ledger.PoolSubscription,
			Amount:       -fromSub,
			BalanceAfter: total,
			Description:  desc,
			CreatedAt:    now,
		})
	}
	if fromTop > 0 {
		entries = append(entries, ledger.Entry{
			ID:           uuid.NewString(),
			TenantID:     acc.TenantID,
			Type:         ledger.TypeUsage,
			Pool:         ledger.PoolTopOff,
			Amount:       -fromTop,
			BalanceAfter: total,
			Description:  desc,
			CreatedAt:    now,
		})
	}
	return entries
}

// recordUntracked appends an observability-only usage entry for a tenant
// without a ledger record and reports unlimited remaining credits.
func (s *Service) recordUntracked(ctx context.Context, tenantID, action string, required int64, description string) (Result, error) {
	entry := ledger.Entry{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Type:         ledger.TypeUsage,
		Pool:         ledger.PoolSubscription,
		Amount:       0,
		BalanceAfter: -1,
		Description:  fmt.Sprintf("%s (untracked, %d credits not metered)", description, required),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.AppendUntracked(ctx, entry); err != nil {
		// Observability write only; the action itself is not blocked.
		logger.FromContext(ctx).Warn("failed to record untracked usage",
			zap.String("tenant_id", tenantID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
	metrics.DeductionsTotal.WithLabelValues("untracked").Inc()
	return Result{
		Success:          true,
		CreditsRequired:  required,
		CreditsDeducted:  0,
		CreditsRemaining: -1,
	}, nil
}

// warnBelow computes the remaining-total threshold for the warning status.
func (s *Service) warnBelow(planID string) int64 {
	plan, err := s.catalog.Plan(planID)
	if err != nil {
		return 0
	}
	return int64(float64(plan.MonthlyCredits) * s.warnFraction)
}

func (s *Service) publish(entry ledger.Entry) {
	if s.sink == nil {
		return
	}
	s.sink.Enqueue(events.Event{
		Kind:         events.KindEntryCommitted,
		TenantID:     entry.TenantID,
		EntryID:      entry.ID,
		EntryType:    string(entry.Type),
		Pool:         string(entry.Pool),
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		OccurredAt:   entry.CreatedAt,
	})
}
