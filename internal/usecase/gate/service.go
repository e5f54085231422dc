// Package gate implements the balance gate: the read-only pre-authorization
// check AI-usage callers run before performing work. It is advisory, not a
// reservation; nothing here mutates state.
package gate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/logger"
)

// maxQuantity bounds a single check so the credit total cannot overflow
// int64 arithmetic.
const maxQuantity = 1_000_000

// Decision is the outcome of a pre-authorization check.
// CreditsRemaining is -1 for untracked (unmetered) tenants.
type Decision struct {
	Allowed          bool
	CreditsRequired  int64
	CreditsRemaining int64
	Message          string
}

// Service handles pre-authorization checks.
type Service struct {
	accounts AccountReader
	costs    CostTable
}

// New creates a gate service.
func New(accounts AccountReader, costs CostTable) *Service {
	return &Service{accounts: accounts, costs: costs}
}

// Check decides whether the tenant may perform quantity units of action.
// A missing account fails open: a not-yet-provisioned ledger record must
// never block a paying tenant's operations. Unexpected read errors also
// fail open, with a logged warning.
func (s *Service) Check(ctx context.Context, tenantID, action string, quantity int64) (Decision, error) {
	if tenantID == "" || action == "" {
		return Decision{}, fmt.Errorf("tenant id and action are required: %w", domain.ErrValidation)
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > maxQuantity {
		return Decision{}, fmt.Errorf("quantity must be between 1 and %d: %w", maxQuantity, domain.ErrValidation)
	}

	cost, err := s.costs.Cost(action)
	if err != nil {
		return Decision{}, err
	}
	required := cost * quantity
	if cost != 0 && required/quantity != cost {
		return Decision{}, fmt.Errorf("credit total overflows for quantity %d: %w", quantity, domain.ErrValidation)
	}

	acc, err := s.accounts.GetAccount(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return Decision{
				Allowed:          true,
				CreditsRequired:  required,
				CreditsRemaining: -1,
				Message:          "tenant is not credit-tracked; usage is unlimited",
			}, nil
		}
		logger.FromContext(ctx).Warn("balance check failed open on storage error",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return Decision{
			Allowed:          true,
			CreditsRequired:  required,
			CreditsRemaining: -1,
			Message:          "balance unavailable; allowing",
		}, nil
	}

	if acc.Status.Blocking() {
		msg := "account is suspended"
		if acc.Status == account.StatusCanceled {
			msg = "subscription is canceled"
		}
		return Decision{
			Allowed:          false,
			CreditsRequired:  required,
			CreditsRemaining: acc.Total(),
			Message:          msg,
		}, nil
	}

	if acc.Total() < required {
		msg := "insufficient credits"
		if acc.Status == account.StatusExhausted {
			msg = "plan credits exhausted"
		}
		return Decision{
			Allowed:          false,
			CreditsRequired:  required,
			CreditsRemaining: acc.Total(),
			Message:          msg,
		}, nil
	}

	return Decision{
		Allowed:          true,
		CreditsRequired:  required,
		CreditsRemaining: acc.Total(),
	}, nil
}
