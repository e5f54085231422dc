// Package chi wires the credit ledger use cases onto an HTTP API.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	balanceuc "github.com/newsroom-hq/creditledger/internal/usecase/balance"
	deductuc "github.com/newsroom-hq/creditledger/internal/usecase/deduct"
	gateuc "github.com/newsroom-hq/creditledger/internal/usecase/gate"
	healthuc "github.com/newsroom-hq/creditledger/internal/usecase/health"
	ingestuc "github.com/newsroom-hq/creditledger/internal/usecase/ingest"
	tenantuc "github.com/newsroom-hq/creditledger/internal/usecase/tenant"
)

// maxWebhookBody bounds the webhook payload we are willing to read.
const maxWebhookBody = 1 << 20

// Error response codes.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeUnknownAction    = "unknown_action"
	codeUnknownPlan      = "unknown_plan"
	codeAccountNotFound  = "account_not_found"
	codeAccountExists    = "account_already_exists"
	codeVersionConflict  = "version_conflict"
	codeBadSignature     = "invalid_signature"
	codeUnauthorized     = "unauthorized"
	codeInternalError    = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the credit ledger over HTTP.
type Server struct {
	gate          *gateuc.Service
	deduct        *deductuc.Service
	balance       *balanceuc.Service
	tenants       *tenantuc.Service
	ingest        *ingestuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	gate *gateuc.Service,
	deduct *deductuc.Service,
	balance *balanceuc.Service,
	tenants *tenantuc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		gate:    gate,
		deduct:  deduct,
		balance: balance,
		tenants: tenants,
		ingest:  ingest,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		versionConflictHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrUnknownAction, http.StatusBadRequest, codeUnknownAction),
		sentinelHandler(domain.ErrUnknownPlan, http.StatusBadRequest, codeUnknownPlan),
		sentinelHandler(domain.ErrAccountNotFound, http.StatusNotFound, codeAccountNotFound),
		sentinelHandler(domain.ErrAccountExists, http.StatusConflict, codeAccountExists),
		sentinelHandler(domain.ErrBadSignature, http.StatusBadRequest, codeBadSignature),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.GetHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/credits/check", s.CheckCredits)
		r.Post("/credits/deduct", s.DeductCredits)
		r.Post("/tenants", s.CreateTenant)
		r.Get("/tenants/{tenantID}/balance", s.GetBalance)
		r.Get("/tenants/{tenantID}/ledger", s.ListLedger)
		r.Post("/webhooks/payment", s.PaymentWebhook)
	})
}

// CreditRequest is the body for check and deduct calls.
type CreditRequest struct {
	TenantID    string `json:"tenantId"`
	Action      string `json:"action"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description"`
}

// CheckResponse is the advisory pre-authorization answer.
type CheckResponse struct {
	Allowed          bool   `json:"allowed"`
	CreditsRequired  int64  `json:"creditsRequired"`
	CreditsRemaining int64  `json:"creditsRemaining"`
	Message          string `json:"message,omitempty"`
}

// DeductResponse reports the outcome of a deduction.
type DeductResponse struct {
	Success          bool   `json:"success"`
	CreditsRequired  int64  `json:"creditsRequired"`
	CreditsDeducted  int64  `json:"creditsDeducted"`
	CreditsRemaining int64  `json:"creditsRemaining"`
	Status           string `json:"status"`
	IsOverage        bool   `json:"isOverage"`
}

// BalanceResponse is the tenant balance report.
type BalanceResponse struct {
	TenantID            string `json:"tenantId"`
	PlanID              string `json:"planId"`
	SubscriptionCredits int64  `json:"subscriptionCredits"`
	TopOffCredits       int64  `json:"topOffCredits"`
	TotalCredits        int64  `json:"totalCredits"`
	MonthlyCredits      int64  `json:"monthlyCredits"`
	MaxJournalists      int    `json:"maxJournalists"`
	MaxArticlesPerDay   int    `json:"maxArticlesPerDay"`
	Status              string `json:"status"`
	BillingCycleEnd     string `json:"billingCycleEnd,omitempty"`
	DaysUntilRenewal    int    `json:"daysUntilRenewal"`
}

// LedgerEntry is one history record on the wire.
type LedgerEntry struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Pool              string `json:"pool"`
	Amount            int64  `json:"amount"`
	BalanceAfter      int64  `json:"balanceAfter"`
	Description       string `json:"description,omitempty"`
	ExternalReference string `json:"externalReference,omitempty"`
	CreatedAt         string `json:"createdAt"`
}

// LedgerResponse is one page of history, newest first.
type LedgerResponse struct {
	Entries    []LedgerEntry `json:"entries"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// CreateTenantRequest is the provisioning body.
type CreateTenantRequest struct {
	TenantID           string `json:"tenantId"`
	PlanID             string `json:"planId"`
	ExternalCustomerID string `json:"externalCustomerId"`
}

// WebhookResponse acknowledges a gateway delivery.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// CheckCredits handles POST /v1/credits/check.
func (s *Server) CheckCredits(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	d, err := s.gate.Check(r.Context(), req.TenantID, req.Action, req.Quantity)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		Allowed:          d.Allowed,
		CreditsRequired:  d.CreditsRequired,
		CreditsRemaining: d.CreditsRemaining,
		Message:          d.Message,
	})
}

// DeductCredits handles POST /v1/credits/deduct.
func (s *Server) DeductCredits(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.deduct.Deduct(r.Context(), req.TenantID, req.Action, req.Quantity, req.Description)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeductResponse{
		Success:          res.Success,
		CreditsRequired:  res.CreditsRequired,
		CreditsDeducted:  res.CreditsDeducted,
		CreditsRemaining: res.CreditsRemaining,
		Status:           string(res.Status),
		IsOverage:        res.IsOverage,
	})
}

// GetBalance handles GET /v1/tenants/{tenantID}/balance.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	report, err := s.balance.GetBalance(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := BalanceResponse{
		TenantID:            report.TenantID,
		PlanID:              report.PlanID,
		SubscriptionCredits: report.SubscriptionCredits,
		TopOffCredits:       report.TopOffCredits,
		TotalCredits:        report.TotalCredits,
		MonthlyCredits:      report.MonthlyCredits,
		MaxJournalists:      report.MaxJournalists,
		MaxArticlesPerDay:   report.MaxArticlesPerDay,
		Status:              report.Status,
		DaysUntilRenewal:    report.DaysUntilRenewal,
	}
	if !report.BillingCycleEnd.IsZero() {
		resp.BillingCycleEnd = report.BillingCycleEnd.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListLedger handles GET /v1/tenants/{tenantID}/ledger.
func (s *Server) ListLedger(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be a positive integer")
			return
		}
		limit = n
	}

	page, err := s.balance.ListLedger(
		r.Context(), chi.URLParam(r, "tenantID"), r.URL.Query().Get("cursor"), limit,
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := LedgerResponse{
		Entries:    make([]LedgerEntry, len(page.Entries)),
		NextCursor: page.NextCursor,
	}
	for i := range page.Entries {
		resp.Entries[i] = entryToWire(page.Entries[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTenant handles POST /v1/tenants.
func (s *Server) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	acc, err := s.tenants.Create(r.Context(), tenantuc.CreateInput{
		TenantID:           req.TenantID,
		PlanID:             req.PlanID,
		ExternalCustomerID: req.ExternalCustomerID,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BalanceResponse{
		TenantID:            acc.TenantID,
		PlanID:              acc.PlanID,
		SubscriptionCredits: acc.SubscriptionCredits,
		TopOffCredits:       acc.TopOffCredits,
		TotalCredits:        acc.Total(),
		Status:              string(acc.Status),
		BillingCycleEnd:     acc.BillingCycleEnd.UTC().Format(time.RFC3339),
	})
}

// PaymentWebhook handles POST /v1/webhooks/payment. The route is exempt
// from bearer auth; the gateway signature is the authentication.
func (s *Server) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "failed to read request body")
		return
	}

	outcome, err := s.ingest.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Outcome: string(outcome)})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func entryToWire(e ledger.Entry) LedgerEntry {
	return LedgerEntry{
		ID:                e.ID,
		Type:              string(e.Type),
		Pool:              string(e.Pool),
		Amount:            e.Amount,
		BalanceAfter:      e.BalanceAfter,
		Description:       e.Description,
		ExternalReference: e.ExternalReference,
		CreatedAt:         e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrUnknownAction,
		domain.ErrUnknownPlan,
		domain.ErrAccountNotFound,
		domain.ErrAccountExists,
		domain.ErrVersionConflict,
		domain.ErrBadSignature,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// versionConflictHandler handles ErrVersionConflict with the current version in the body.
func versionConflictHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrVersionConflict) {
		return false
	}
	var vce *domain.VersionConflictError
	if errors.As(err, &vce) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"code":            codeVersionConflict,
			"message":         msg,
			"current_version": vce.Current,
		})
		return true
	}
	writeError(w, http.StatusConflict, codeVersionConflict, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
