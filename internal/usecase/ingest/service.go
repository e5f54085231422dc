// Package ingest implements the payment webhook ingestor: the idempotent
// translator from payment-gateway events into ledger mutations. The
// gateway delivers at least once and out of order; every monetary event
// claims its external reference inside the same atomic write that moves
// the balance, so replays can never double-credit.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
	"github.com/newsroom-hq/creditledger/internal/logger"
	"github.com/newsroom-hq/creditledger/internal/metrics"
)

// Outcome describes how an event was handled. Everything except an error
// is acknowledged with 200 so the gateway stops redelivering.
type Outcome string

// Outcome values.
const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Service handles payment gateway webhooks.
type Service struct {
	repo         Repository
	catalog      Catalog
	secret       string
	sink         EventSink
	maxAttempts  uint
	retryBase    time.Duration
	warnFraction float64
}

// New creates a webhook ingest service. secret is the gateway's webhook
// signing secret, injected at construction.
func New(repo Repository, cat Catalog, secret string) *Service {
	return &Service{
		repo:         repo,
		catalog:      cat,
		secret:       secret,
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
// plan's monthly credits. It must match the deduction engine's threshold
// or a renewal and a deduction would disagree on the warning status.
func (s *Service) WithWarnFraction(f float64) *Service {
	if f > 0 && f < 1 {
		s.warnFraction = f
	}
	return s
}

// HandleEvent verifies the payload signature and applies the event.
// Nothing is processed before verification succeeds: the gateway retries
// with the same signature, so a rejected delivery must have no side
// effect. Returns domain.ErrBadSignature for unverifiable payloads;
// other errors are transient and should surface as 5xx so the gateway
// redelivers.
func (s *Service) HandleEvent(ctx context.Context, payload []byte, sigHeader string) (Outcome, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBadSignature, err)
	}

	outcome, err := s.dispatch(ctx, event)
	label := string(outcome)
	if err != nil {
		label = "error"
	}
	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), label).Inc()
	return outcome, err
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) (Outcome, error) {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleTopUp(ctx, event)
	case "invoice.paid":
		return s.handleRenewal(ctx, event)
	case "invoice.payment_failed":
		return s.handlePaymentFailed(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		return OutcomeIgnored, nil
	}
}

// handleTopUp grants purchased credits to the top-off pool.
func (s *Service) handleTopUp(ctx context.Context, event stripe.Event) (Outcome, error) {
	var sess checkoutSessionPayload
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", fmt.Errorf("parse checkout session: %w: %w", domain.ErrValidation, err)
	}
	if sess.Mode != "" && sess.Mode != "payment" {
		// Subscription checkouts reconcile via invoice.paid.
		return OutcomeIgnored, nil
	}

	credits, err := strconv.ParseInt(sess.Metadata["credits"], 10, 64)
	if err != nil || credits <= 0 {
		logger.FromContext(ctx).Warn("top-up session without a usable credits metadata field",
			zap.String("session_id", sess.ID),
		)
		return OutcomeIgnored, nil
	}

	tenantID, err := s.resolveTenant(ctx, sess.Metadata, sess.Customer)
	if err != nil {
		logger.FromContext(ctx).Warn("cannot resolve tenant for top-up",
			zap.String("session_id", sess.ID),
			zap.String("customer", sess.Customer),
			zap.Error(err),
		)
		return OutcomeIgnored, nil
	}

	if dup, err := s.alreadyApplied(ctx, sess.ID); err != nil {
		return "", err
	} else if dup {
		return OutcomeDuplicate, nil
	}

	_, entries, err := s.applyWithRetry(ctx, tenantID, func(acc *account.Account) ([]ledger.Entry, error) {
		acc.TopOffCredits += credits
		acc.RecomputeStatus(s.warnBelow(acc.PlanID))
		if sess.Customer != "" && acc.ExternalCustomerID == "" {
			acc.ExternalCustomerID = sess.Customer
		}
		return []ledger.Entry{{
			ID:                uuid.NewString(),
			TenantID:          acc.TenantID,
			Type:              ledger.TypePurchase,
			Pool:              ledger.PoolTopOff,
			Amount:            credits,
			BalanceAfter:      acc.Total(),
			Description:       fmt.Sprintf("top-up purchase of %d credits (%d cents paid)", credits, sess.AmountTotal),
			ExternalReference: sess.ID,
			CreatedAt:         time.Now().UTC(),
		}}, nil
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		// Includes a still-missing account: redelivery gives tenant
		// provisioning time to catch up.
		return "", fmt.Errorf("apply top-up %s: %w", sess.ID, err)
	}

	s.publish(entries)
	return OutcomeProcessed, nil
}

// handleRenewal resets the subscription pool to the plan's monthly
// allocation. The reset is hard: unused prior-cycle subscription credits
// are forfeited, recorded as an adjustment so the ledger still reconciles.
func (s *Service) handleRenewal(ctx context.Context, event stripe.Event) (Outcome, error) {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return "", fmt.Errorf("parse invoice: %w: %w", domain.ErrValidation, err)
	}

	tenantID, err := s.resolveTenant(ctx, inv.Metadata, inv.Customer)
	if err != nil {
		logger.FromContext(ctx).Warn("cannot resolve tenant for renewal",
			zap.String("invoice_id", inv.ID),
			zap.String("customer", inv.Customer),
			zap.Error(err),
		)
		return OutcomeIgnored, nil
	}

	if dup, err := s.alreadyApplied(ctx, inv.ID); err != nil {
		return "", err
	} else if dup {
		return OutcomeDuplicate, nil
	}

	_, entries, err := s.applyWithRetry(ctx, tenantID, func(acc *account.Account) ([]ledger.Entry, error) {
		plan, err := s.catalog.Plan(acc.PlanID)
		if err != nil {
			return nil, fmt.Errorf("renewal for tenant %s: %w", acc.TenantID, err)
		}

		leftover := acc.SubscriptionCredits
		acc.SubscriptionCredits = plan.MonthlyCredits
		acc.Status = account.StatusActive
		acc.RecomputeStatus(s.warnBelow(acc.PlanID))
		acc.BillingCycleStart = unixOr(inv.PeriodStart, time.Now().UTC())
		acc.BillingCycleEnd = unixOr(inv.PeriodEnd, acc.BillingCycleStart.AddDate(0, 1, 0))
		if inv.Subscription != "" {
			acc.ExternalSubscriptionID = inv.Subscription
		}

		now := time.Now().UTC()
		var entries []ledger.Entry
		if leftover > 0 {
			entries = append(entries, ledger.Entry{
				ID:           uuid.NewString(),
				TenantID:     acc.TenantID,
				Type:         ledger.TypeAdjustment,
				Pool:         ledger.PoolSubscription,
				Amount:       -leftover,
				BalanceAfter: acc.Total(),
				Description:  fmt.Sprintf("cycle rollover: %d unused subscription credits forfeited", leftover),
				CreatedAt:    now,
			})
		}
		entries = append(entries, ledger.Entry{
			ID:                uuid.NewString(),
			TenantID:          acc.TenantID,
			Type:              ledger.TypeAllocation,
			Pool:              ledger.PoolSubscription,
			Amount:            plan.MonthlyCredits,
			BalanceAfter:      acc.Total(),
			Description:       fmt.Sprintf("monthly allocation for plan %s", plan.ID),
			ExternalReference: inv.ID,
			CreatedAt:         now,
		})
		return entries, nil
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("apply renewal %s: %w", inv.ID, err)
	}

	if inv.Customer != "" {
		if err := s.repo.MapCustomer(ctx, inv.Customer, tenantID); err != nil {
			logger.FromContext(ctx).Warn("failed to refresh customer index", zap.Error(err))
		}
	}

	s.publish(entries)
	return OutcomeProcessed, nil
}

// handlePaymentFailed marks the account past_due. No balance change, no
// reference claimed: the transition is idempotent by nature.
func (s *Service) handlePaymentFailed(ctx context.Context, event stripe.Event) (Outcome, error) {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return "", fmt.Errorf("parse invoice: %w: %w", domain.ErrValidation, err)
	}

	return s.applyStatusChange(ctx, inv.Metadata, inv.Customer, func(acc *account.Account) {
		acc.Status = account.StatusPastDue
	})
}

// handleSubscriptionUpdated mirrors the gateway's subscription status and
// refreshes the next billing date. Absent a sequence number from the
// gateway, last write wins.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) (Outcome, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("parse subscription: %w: %w", domain.ErrValidation, err)
	}

	mapped, ok := mapGatewayStatus(sub.Status)
	outcome, err := s.applyStatusChange(ctx, sub.Metadata, sub.Customer, func(acc *account.Account) {
		switch {
		case !ok:
			// Unknown gateway status: leave ours alone.
		case mapped == account.StatusActive && acc.Status.BalanceDriven():
			// Balance-driven statuses already refine "active".
		default:
			acc.Status = mapped
		}
		if sub.ID != "" {
			acc.ExternalSubscriptionID = sub.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			acc.BillingCycleEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		}
	})
	if err != nil || outcome != OutcomeProcessed {
		return outcome, err
	}

	if sub.Customer != "" {
		if tenantID, rerr := s.resolveTenant(ctx, sub.Metadata, sub.Customer); rerr == nil {
			if merr := s.repo.MapCustomer(ctx, sub.Customer, tenantID); merr != nil {
				logger.FromContext(ctx).Warn("failed to refresh customer index", zap.Error(merr))
			}
		}
	}
	return OutcomeProcessed, nil
}

// handleSubscriptionDeleted marks the account canceled.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) (Outcome, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("parse subscription: %w: %w", domain.ErrValidation, err)
	}

	return s.applyStatusChange(ctx, sub.Metadata, sub.Customer, func(acc *account.Account) {
		acc.Status = account.StatusCanceled
	})
}

// applyStatusChange runs a balance-free account mutation. A missing
// account is acknowledged and skipped: there is nothing to mark, and
// redelivering a status event cannot create one.
func (s *Service) applyStatusChange(
	ctx context.Context,
	metadata map[string]string,
	customerID string,
	change func(acc *account.Account),
) (Outcome, error) {
	tenantID, err := s.resolveTenant(ctx, metadata, customerID)
	if err != nil {
		logger.FromContext(ctx).Warn("cannot resolve tenant for status change",
			zap.String("customer", customerID),
			zap.Error(err),
		)
		return OutcomeIgnored, nil
	}

	_, _, err = s.applyWithRetry(ctx, tenantID, func(acc *account.Account) ([]ledger.Entry, error) {
		change(acc)
		return nil, nil
	})
	if errors.Is(err, domain.ErrAccountNotFound) {
		logger.FromContext(ctx).Warn("status change for unknown tenant skipped",
			zap.String("tenant_id", tenantID),
		)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("apply status change for tenant %s: %w", tenantID, err)
	}
	return OutcomeProcessed, nil
}

// alreadyApplied checks the reference marker before attempting a write.
// The commit script re-checks under atomicity; this read just keeps
// replays cheap.
func (s *Service) alreadyApplied(ctx context.Context, ref string) (bool, error) {
	entryID, err := s.repo.FindEntryIDByReference(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("idempotency check %s: %w", ref, err)
	}
	return entryID != "", nil
}

// resolveTenant prefers explicit event metadata over the customer index.
func (s *Service) resolveTenant(ctx context.Context, metadata map[string]string, customerID string) (string, error) {
	if id := metadata["tenant_id"]; id != "" {
		return id, nil
	}
	if customerID == "" {
		return "", fmt.Errorf("event carries no tenant_id metadata and no customer: %w", domain.ErrValidation)
	}
	return s.repo.TenantByCustomer(ctx, customerID)
}

func (s *Service) applyWithRetry(
	ctx context.Context,
	tenantID string,
	fn func(acc *account.Account) ([]ledger.Entry, error),
) (account.Account, []ledger.Entry, error) {
	type applied struct {
		acc     account.Account
		entries []ledger.Entry
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryBase

	out, err := backoff.Retry(ctx, func() (applied, error) {
		acc, entries, err := s.repo.Apply(ctx, tenantID, fn)
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

func (s *Service) warnBelow(planID string) int64 {
	plan, err := s.catalog.Plan(planID)
	if err != nil {
		return 0
	}
	return int64(float64(plan.MonthlyCredits) * s.warnFraction)
}

func (s *Service) publish(entries []ledger.Entry) {
	if s.sink == nil {
		return
	}
	for i := range entries {
		s.sink.Enqueue(events.Event{
			Kind:         events.KindEntryCommitted,
			TenantID:     entries[i].TenantID,
			EntryID:      entries[i].ID,
			EntryType:    string(entries[i].Type),
			Pool:         string(entries[i].Pool),
			Amount:       entries[i].Amount,
			BalanceAfter: entries[i].BalanceAfter,
			OccurredAt:   entries[i].CreatedAt,
		})
	}
}

// mapGatewayStatus translates a gateway subscription status onto ours.
func mapGatewayStatus(s string) (account.Status, bool) {
	switch s {
	case "active", "trialing":
		return account.StatusActive, true
	case "past_due":
		return account.StatusPastDue, true
	case "canceled":
		return account.StatusCanceled, true
	case "unpaid":
		return account.StatusSuspended, true
	default:
		return "", false
	}
}

func unixOr(sec int64, fallback time.Time) time.Time {
	if sec <= 0 {
		return fallback
	}
	return time.Unix(sec, 0).UTC()
}
