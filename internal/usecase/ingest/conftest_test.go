package ingest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/newsroom-hq/creditledger/internal/domain"
	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
	"github.com/stripe/stripe-go/v82"
)

const testSecret = "whsec_test"

// mockRepo implements Repository for tests. Apply runs fn against the
// configured account like the real commit path would.
type mockRepo struct {
	acc         account.Account
	accMissing  bool
	applyErr    error
	applyCalls  int
	lastApplied []ledger.Entry
	refs        map[string]string
	customers   map[string]string
	mapped      map[string]string
}

func (m *mockRepo) Apply(
	ctx context.Context,
	tenantID string,
	fn func(acc *account.Account) ([]ledger.Entry, error),
) (account.Account, []ledger.Entry, error) {
	m.applyCalls++
	if m.applyErr != nil {
		return account.Account{}, nil, m.applyErr
	}
	if m.accMissing || tenantID != m.acc.TenantID {
		return account.Account{}, nil, domain.ErrAccountNotFound
	}
	acc := m.acc
	entries, err := fn(&acc)
	if err != nil {
		return account.Account{}, nil, err
	}
	for i := range entries {
		if ref := entries[i].ExternalReference; ref != "" {
			if _, dup := m.refs[ref]; dup {
				return account.Account{}, nil, fmt.Errorf("reference %s: %w", ref, domain.ErrDuplicateReference)
			}
			m.refs[ref] = entries[i].ID
		}
	}
	acc.Version++
	m.acc = acc
	m.lastApplied = entries
	return acc, entries, nil
}

func (m *mockRepo) FindEntryIDByReference(_ context.Context, ref string) (string, error) {
	return m.refs[ref], nil
}

func (m *mockRepo) TenantByCustomer(_ context.Context, customerID string) (string, error) {
	id, ok := m.customers[customerID]
	if !ok {
		return "", domain.ErrAccountNotFound
	}
	return id, nil
}

func (m *mockRepo) MapCustomer(_ context.Context, customerID, tenantID string) error {
	m.mapped[customerID] = tenantID
	return nil
}

// mockSink implements EventSink for tests.
type mockSink struct {
	events []events.Event
}

func (m *mockSink) Enqueue(ev events.Event) bool {
	m.events = append(m.events, ev)
	return true
}

func newTestService(t *testing.T, acc account.Account) (*Service, *mockRepo, *mockSink) {
	t.Helper()
	mr := &mockRepo{
		acc:       acc,
		refs:      map[string]string{},
		customers: map[string]string{},
		mapped:    map[string]string{},
	}
	sink := &mockSink{}
	svc := New(mr, catalog.Default(), testSecret).
		WithEventSink(sink).
		WithRetry(3, time.Millisecond)
	return svc, mr, sink
}

// signedHeader builds a valid gateway signature header for payload.
func signedHeader(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// eventPayload wraps an object into the gateway's event envelope.
func eventPayload(t *testing.T, eventType, object string) []byte {
	t.Helper()
	return []byte(fmt.Sprintf(`{"id":"evt_1","type":%q,"api_version":%q,"data":{"object":%s}}`, eventType, stripe.APIVersion, object))
}
