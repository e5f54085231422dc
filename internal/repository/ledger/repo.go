// Package ledger is the Ledger Store: durable tenant accounts plus the
// append-only transaction log, and the only place balances are mutated.
// Every balance write goes through an atomic compare-and-set keyed by the
// account version, so concurrent deductions on one tenant serialize while
// different tenants stay fully independent.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/newsroom-hq/creditledger/internal/db"
	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
)

const keyPrefix = "creditledger:"

// store is the consumer interface for ledger operations (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	Eval(ctx context.Context, src string, keys, args []string) (string, error)
}

// Repo implements the ledger store on top of db.Store.
type Repo struct {
	store store
}

// New creates a ledger repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// GetAccount returns the tenant account, or domain.ErrAccountNotFound.
func (r *Repo) GetAccount(ctx context.Context, tenantID string) (account.Account, error) {
	m, err := r.store.HGetAll(ctx, accountKey(tenantID))
	if err != nil {
		return account.Account{}, fmt.Errorf("hgetall account %s: %w", tenantID, err)
	}
	if len(m) == 0 {
		return account.Account{}, domain.ErrAccountNotFound
	}
	return accountFromFields(m), nil
}

// CreateAccount writes a new account and its initial allocation entries
// atomically. Returns domain.ErrAccountExists on a duplicate tenant id.
func (r *Repo) CreateAccount(ctx context.Context, acc account.Account, initial []ledger.Entry) error {
	acc.Version = 1
	keys := []string{accountKey(acc.TenantID), entriesKey(acc.TenantID)}
	args := make([]string, 0, 1+len(initial))

	accJSON, err := json.Marshal(accountToFields(&acc))
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	args = append(args, string(accJSON))

	for i := range initial {
		entryJSON, err := json.Marshal(entryToFields(&initial[i]))
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		keys = append(keys, entryKey(initial[i].ID))
		args = append(args, string(entryJSON))
	}

	reply, err := r.store.Eval(ctx, createScript, keys, args)
	if err != nil {
		return fmt.Errorf("create account %s: %w", acc.TenantID, err)
	}
	if reply == "EXISTS" {
		return fmt.Errorf("tenant %s: %w", acc.TenantID, domain.ErrAccountExists)
	}

	if acc.ExternalCustomerID != "" {
		if err := r.MapCustomer(ctx, acc.ExternalCustomerID, acc.TenantID); err != nil {
			return err
		}
	}
	return nil
}

// Apply runs one optimistic read-modify-write cycle on a tenant account.
// fn receives the current account, mutates it to the desired state and
// returns the ledger entries to append; account update and entries commit
// as a single atomic unit. At most one entry may carry an external
// reference. Returns domain.ErrVersionConflict when another writer won
// the race (callers retry with bounded backoff), domain.ErrDuplicateReference
// when the external reference was already applied.
func (r *Repo) Apply(
	ctx context.Context,
	tenantID string,
	fn func(acc *account.Account) ([]ledger.Entry, error),
) (account.Account, []ledger.Entry, error) {
	acc, err := r.GetAccount(ctx, tenantID)
	if err != nil {
		return account.Account{}, nil, err
	}

	expected := acc.Version
	entries, err := fn(&acc)
	if err != nil {
		return account.Account{}, nil, err
	}

	acc.Version = expected + 1
	acc.UpdatedAt = time.Now().UTC()

	extRef, refEntryID := externalReference(entries)
	refMarker := accountKey(tenantID) // unused slot when no reference claimed
	hasRef := "0"
	if extRef != "" {
		refMarker = refKey(extRef)
		hasRef = "1"
	}

	keys := []string{accountKey(tenantID), entriesKey(tenantID), refMarker}
	accJSON, err := json.Marshal(accountToFields(&acc))
	if err != nil {
		return account.Account{}, nil, fmt.Errorf("marshal account: %w", err)
	}
	args := []string{strconv.FormatInt(expected, 10), hasRef, refEntryID, string(accJSON)}

	for i := range entries {
		entryJSON, err := json.Marshal(entryToFields(&entries[i]))
		if err != nil {
			return account.Account{}, nil, fmt.Errorf("marshal entry: %w", err)
		}
		keys = append(keys, entryKey(entries[i].ID))
		args = append(args, string(entryJSON))
	}

	reply, err := r.store.Eval(ctx, commitScript, keys, args)
	if err != nil {
		return account.Account{}, nil, fmt.Errorf("commit tenant %s: %w", tenantID, err)
	}

	switch {
	case reply == "OK":
		return acc, entries, nil
	case reply == "DUPLICATE":
		return account.Account{}, nil, fmt.Errorf("reference %s: %w", extRef, domain.ErrDuplicateReference)
	case reply == "MISSING":
		return account.Account{}, nil, domain.ErrAccountNotFound
	case strings.HasPrefix(reply, "CONFLICT:"):
		current := parseInt(strings.TrimPrefix(reply, "CONFLICT:"))
		return account.Account{}, nil, domain.NewVersionConflict(expected, current)
	default:
		return account.Account{}, nil, fmt.Errorf("commit tenant %s: unexpected reply %q", tenantID, reply)
	}
}

// AppendUntracked records a non-balance-mutating entry, used for usage by
// tenants that have no ledger record yet.
func (r *Repo) AppendUntracked(ctx context.Context, entry ledger.Entry) error {
	entryJSON, err := json.Marshal(entryToFields(&entry))
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	keys := []string{entryKey(entry.ID), entriesKey(entry.TenantID)}
	if _, err := r.store.Eval(ctx, appendScript, keys, []string{string(entryJSON)}); err != nil {
		return fmt.Errorf("append entry %s: %w", entry.ID, err)
	}
	return nil
}

// FindEntryIDByReference returns the id of the entry that claimed the
// external reference, or "" when the reference has not been seen.
func (r *Repo) FindEntryIDByReference(ctx context.Context, ref string) (string, error) {
	data, err := r.store.Get(ctx, refKey(ref))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("get reference %s: %w", ref, err)
	}
	return string(data), nil
}

// ListEntries returns ledger entries newest-first with offset-cursor
// pagination.
func (r *Repo) ListEntries(ctx context.Context, tenantID, cursor string, limit int) (
	[]ledger.Entry, string, error,
) {
	if limit <= 0 {
		limit = 20
	}

	offset := int64(0)
	if cursor != "" {
		parsed, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || parsed < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", cursor, domain.ErrValidation)
		}
		offset = parsed
	}

	listKey := entriesKey(tenantID)
	total, err := r.store.LLen(ctx, listKey)
	if err != nil {
		return nil, "", fmt.Errorf("llen %s: %w", tenantID, err)
	}
	if offset >= total {
		return nil, "", nil
	}

	// The list is append-ordered; page backwards from the tail.
	stop := total - offset - 1
	start := stop - int64(limit) + 1
	if start < 0 {
		start = 0
	}
	ids, err := r.store.LRange(ctx, listKey, start, stop)
	if err != nil {
		return nil, "", fmt.Errorf("lrange %s: %w", tenantID, err)
	}

	entries := make([]ledger.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		m, err := r.store.HGetAll(ctx, entryKey(ids[i]))
		if err != nil {
			return nil, "", fmt.Errorf("hgetall entry %s: %w", ids[i], err)
		}
		if len(m) == 0 {
			continue
		}
		entries = append(entries, entryFromFields(m))
	}

	var next string
	if offset+int64(len(ids)) < total {
		next = strconv.FormatInt(offset+int64(len(ids)), 10)
	}
	return entries, next, nil
}

// MapCustomer indexes an external customer id to a tenant id for webhook
// resolution. Last write wins; the gateway is the source of truth.
func (r *Repo) MapCustomer(ctx context.Context, customerID, tenantID string) error {
	if err := r.store.Set(ctx, customerKey(customerID), []byte(tenantID)); err != nil {
		return fmt.Errorf("map customer %s: %w", customerID, err)
	}
	return nil
}

// TenantByCustomer resolves an external customer id to a tenant id.
// Returns domain.ErrAccountNotFound when the customer is unknown.
func (r *Repo) TenantByCustomer(ctx context.Context, customerID string) (string, error) {
	data, err := r.store.Get(ctx, customerKey(customerID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return "", domain.ErrAccountNotFound
		}
		return "", fmt.Errorf("get customer %s: %w", customerID, err)
	}
	return string(data), nil
}

// externalReference finds the single claimed reference among entries.
func externalReference(entries []ledger.Entry) (ref, entryID string) {
	for i := range entries {
		if entries[i].ExternalReference != "" {
			return entries[i].ExternalReference, entries[i].ID
		}
	}
	return "", ""
}

func accountKey(tenantID string) string {
	return keyPrefix + "tenant:" + tenantID
}

func entriesKey(tenantID string) string {
	return keyPrefix + "tenant:" + tenantID + ":entries"
}

func entryKey(entryID string) string {
	return keyPrefix + "entry:" + entryID
}

func refKey(ref string) string {
	return keyPrefix + "extref:" + ref
}

func customerKey(customerID string) string {
	return keyPrefix + "customer:" + customerID
}
