package linkcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panwatch/panwatch/internal/core/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	messages []domain.Message
	stats    []domain.LinkCheckStat
	details  []domain.LinkCheckDetail
}

func (f *fakeStore) MessagesWithLinksBetween(_ context.Context, _, _ time.Time) ([]domain.Message, error) {
	return f.messages, nil
}

func (f *fakeStore) SaveCheckRun(_ context.Context, stat *domain.LinkCheckStat, details []domain.LinkCheckDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stats = append(f.stats, *stat)
	f.details = append(f.details, details...)

	return nil
}

func (f *fakeStore) savedStats() []domain.LinkCheckStat {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]domain.LinkCheckStat(nil), f.stats...)
}

func linkedMessage(id int64, urls ...string) domain.Message {
	links := domain.Links{}
	for _, u := range urls {
		links["未知网盘"] = append(links["未知网盘"], domain.Link{URL: u})
	}

	return domain.Message{ID: id, Timestamp: time.Now(), Links: links}
}

func newTestManager(store Store) *Manager {
	m := NewManager(store, zerolog.Nop())
	m.newValidator = func() *Validator {
		return newTestValidator()
	}

	return m
}

func waitForTerminal(t *testing.T, m *Manager, id string) TaskStatus {
	t.Helper()

	deadline := time.After(5 * time.Second)

	for {
		select {
		case <-deadline:
			t.Fatal("task did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}

		status, err := m.Status(id)
		require.NoError(t, err)

		if status.Status != domain.CheckStatusRunning {
			return status
		}
	}
}

func TestManagerCompletesTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	store := &fakeStore{messages: []domain.Message{
		linkedMessage(1, srv.URL+"/a", srv.URL+"/b"),
		linkedMessage(2, srv.URL+"/c"),
	}}

	m := newTestManager(store)

	id, err := m.Start(context.Background(), "today", 5)
	require.NoError(t, err)

	status := waitForTerminal(t, m, id)
	assert.Equal(t, domain.CheckStatusCompleted, status.Status)
	assert.Equal(t, 3, status.TotalLinks)
	assert.Equal(t, 3, status.ValidLinks)
	assert.Equal(t, 100, status.Progress)

	stats := store.savedStats()
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].TotalMessages)
	assert.Equal(t, 3, stats[0].TotalLinks)
	assert.Equal(t, domain.CheckStatusCompleted, stats[0].Status)
	assert.Equal(t, 3, stats[0].NetdiskStats[ProviderUnknown].Valid)

	require.Len(t, store.details, 3)
	assert.Equal(t, "none", store.details[0].ActionTaken)
	assert.Zero(t, store.details[0].MessageID)
}

func TestManagerRejectsBadPeriod(t *testing.T) {
	m := newTestManager(&fakeStore{})

	_, err := m.Start(context.Background(), "fortnight", 5)
	require.Error(t, err)
}

func TestManagerFailsOverURLCap(t *testing.T) {
	var messages []domain.Message
	for i := 0; i < maxLinksPerTask+1; i++ {
		messages = append(messages, linkedMessage(int64(i), fmt.Sprintf("https://example.com/%d", i)))
	}

	store := &fakeStore{messages: messages}
	m := newTestManager(store)

	id, err := m.Start(context.Background(), "today", 5)
	require.NoError(t, err)

	status := waitForTerminal(t, m, id)
	assert.Equal(t, domain.CheckStatusFailed, status.Status)
	assert.Contains(t, status.Error, "超过安全限制")

	// Safety-cap failures never write a stats row.
	assert.Empty(t, store.savedStats())
}

func TestManagerFailsOverConcurrencyCap(t *testing.T) {
	store := &fakeStore{messages: []domain.Message{linkedMessage(1, "https://example.com/a")}}
	m := newTestManager(store)

	id, err := m.Start(context.Background(), "today", maxGlobalConcurrent+1)
	require.NoError(t, err)

	status := waitForTerminal(t, m, id)
	assert.Equal(t, domain.CheckStatusFailed, status.Status)
	assert.Empty(t, store.savedStats())
}

func TestManagerCapsFullHistoryConcurrency(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store)

	id, err := m.Start(context.Background(), "all", 8)
	require.NoError(t, err)

	status := waitForTerminal(t, m, id)
	assert.Equal(t, fullHistoryMaxConcur, status.MaxConcurrent)
}

func TestManagerCompletesEmptyWindow(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store)

	id, err := m.Start(context.Background(), "yesterday", 5)
	require.NoError(t, err)

	status := waitForTerminal(t, m, id)
	assert.Equal(t, domain.CheckStatusCompleted, status.Status)
	assert.Equal(t, 0, status.TotalLinks)
	assert.Empty(t, store.savedStats())
}

func TestManagerCancelPersistsInterrupted(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}

		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()
	defer close(release)

	store := &fakeStore{messages: []domain.Message{linkedMessage(1, srv.URL+"/slow")}}
	m := newTestManager(store)

	id, err := m.Start(context.Background(), "today", 5)
	require.NoError(t, err)

	// Let the task reach the probe before cancelling.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, m.Cancel(id))

	status := waitForTerminal(t, m, id)
	assert.Equal(t, domain.CheckStatusInterrupted, status.Status)

	stats := store.savedStats()
	require.Len(t, stats, 1)
	assert.Equal(t, domain.CheckStatusInterrupted, stats[0].Status)
}

func TestManagerCancelRecordsCompletedSubsetOnly(t *testing.T) {
	blocked := make(chan struct{}, 8)
	release := make(chan struct{})

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 3 {
			fmt.Fprint(w, "ok")
			return
		}

		blocked <- struct{}{}

		select {
		case <-release:
		case <-r.Context().Done():
		}

		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()
	defer close(release)

	store := &fakeStore{messages: []domain.Message{
		linkedMessage(1, srv.URL+"/a", srv.URL+"/b", srv.URL+"/c"),
		linkedMessage(2, srv.URL+"/d", srv.URL+"/e", srv.URL+"/f"),
	}}

	m := newTestManager(store)

	id, err := m.Start(context.Background(), "today", 2)
	require.NoError(t, err)

	// Two blocked requests in flight means three finished end to end.
	<-blocked
	<-blocked
	require.NoError(t, m.Cancel(id))

	status := waitForTerminal(t, m, id)
	assert.Equal(t, domain.CheckStatusInterrupted, status.Status)
	assert.Equal(t, 6, status.TotalLinks)
	assert.Equal(t, 3, status.CheckedLinks)
	assert.Equal(t, 3, status.ValidLinks)
	assert.Equal(t, 0, status.InvalidLinks)
	assert.Equal(t, 50, status.Progress)

	stats := store.savedStats()
	require.Len(t, stats, 1)
	assert.Equal(t, domain.CheckStatusInterrupted, stats[0].Status)
	assert.Equal(t, 6, stats[0].TotalLinks)
	assert.Equal(t, 3, stats[0].ValidLinks)
	assert.Equal(t, 0, stats[0].InvalidLinks)
	assert.Equal(t, 3, stats[0].NetdiskStats[ProviderUnknown].Total)

	// Only the finished checks leave detail rows; cancelled ones
	// disappear without a trace.
	require.Len(t, store.details, 3)
	for _, d := range store.details {
		assert.True(t, d.IsValid)
		assert.Empty(t, d.ErrorReason)
	}
}

func TestManagerStatusUnknownTask(t *testing.T) {
	m := newTestManager(&fakeStore{})

	_, err := m.Status("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.ErrorIs(t, m.Cancel("nope"), ErrTaskNotFound)
}
