package deduct

import (
	"context"
	"testing"
	"time"

	"github.com/newsroom-hq/creditledger/internal/domain/account"
	"github.com/newsroom-hq/creditledger/internal/domain/catalog"
	"github.com/newsroom-hq/creditledger/internal/domain/ledger"
	"github.com/newsroom-hq/creditledger/internal/events"
)

// mockRepo implements Repository for tests. Apply runs fn against the
// configured account like the real commit path would.
type mockRepo struct {
	acc         account.Account
	applyErr    error
	failures    int // apply errors returned before succeeding
	applyCalls  int
	appended    []ledger.Entry
	appendErr   error
	lastApplied []ledger.Entry
}

func (m *mockRepo) Apply(
	ctx context.Context,
	tenantID string,
	fn func(acc *account.Account) ([]ledger.Entry, error),
) (account.Account, []ledger.Entry, error) {
	m.applyCalls++
	if m.applyErr != nil && (m.failures == 0 || m.applyCalls <= m.failures) {
		return account.Account{}, nil, m.applyErr
	}
	acc := m.acc
	entries, err := fn(&acc)
	if err != nil {
		return account.Account{}, nil, err
	}
	acc.Version++
	m.acc = acc
	m.lastApplied = entries
	return acc, entries, nil
}

func (m *mockRepo) AppendUntracked(_ context.Context, entry ledger.Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, entry)
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
	mr := &mockRepo{acc: acc}
	sink := &mockSink{}
	svc := New(mr, catalog.Default()).
		WithEventSink(sink).
		WithRetry(3, time.Millisecond)
	return svc, mr, sink
}
