package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"spikeline/internal/domain"
	"spikeline/internal/logging"
)

type fakeResultStore struct {
	mu       sync.Mutex
	rounds   []domain.RoundResult
	matches  []domain.MatchSummary
	matchErr error
}

func (f *fakeResultStore) SaveRound(_ context.Context, result domain.RoundResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds = append(f.rounds, result)
	return nil
}

func (f *fakeResultStore) SaveMatch(_ context.Context, summary domain.MatchSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, summary)
	return f.matchErr
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeArchive) Archive(_ context.Context, summary domain.MatchSummary) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "matches/" + summary.MatchID + ".json"
	f.keys = append(f.keys, key)
	return key, nil
}

// slowResultStore holds every match write until release is closed or the write times out.
type slowResultStore struct {
	fakeResultStore
	started chan struct{}
	release chan struct{}
}

func newSlowResultStore() *slowResultStore {
	return &slowResultStore{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (f *slowResultStore) SaveMatch(ctx context.Context, summary domain.MatchSummary) error {
	select {
	case f.started <- struct{}{}:
	default:
	}
	select {
	case <-f.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.fakeResultStore.SaveMatch(ctx, summary)
}

// runSink starts the sink's writer and returns a func that closes the sink and waits for it to drain.
func runSink(t *testing.T, sink *StoreSink) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		sink.Run(context.Background())
		close(done)
	}()
	return func() {
		sink.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("result sink did not drain")
		}
	}
}

func TestStoreSinkPersistsRoundsAndMatches(t *testing.T) {
	store := &fakeResultStore{}
	archive := &fakeArchive{}
	sink := NewStoreSink(store, archive, nil)
	drain := runSink(t, sink)

	sink.Publish(context.Background(), Event{MatchID: "m1", Kind: EventRoundEnded, Payload: RoundEndedPayload{Result: domain.RoundResult{MatchID: "m1", Number: 1}}})
	sink.Publish(context.Background(), Event{MatchID: "m1", Kind: EventKill, Payload: KillPayload{VictimID: "x"}})
	sink.Publish(context.Background(), Event{MatchID: "m1", Kind: EventMatchEnded, Payload: MatchEndedPayload{Summary: domain.MatchSummary{MatchID: "m1"}}})
	drain()

	require.Len(t, store.rounds, 1)
	assert.Equal(t, 1, store.rounds[0].Number)
	require.Len(t, store.matches, 1)
	assert.Equal(t, []string{"matches/m1.json"}, archive.keys)
}

func TestStoreSinkSavesMatchWhenArchiveFails(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	store := &fakeResultStore{matchErr: errors.New("db down")}
	sink := NewStoreSink(store, &fakeArchive{err: errors.New("bucket gone")}, logging.New(zap.New(core)))
	drain := runSink(t, sink)

	sink.Publish(context.Background(), Event{MatchID: "m2", Kind: EventMatchEnded, Payload: MatchEndedPayload{Summary: domain.MatchSummary{MatchID: "m2"}}})
	drain()

	assert.Len(t, store.matches, 1)
	require.Equal(t, 1, logs.Len())
	msg := logs.All()[0].Message
	assert.Contains(t, msg, "bucket gone")
	assert.Contains(t, msg, "db down")
}

func TestStoreSinkTimesOutStuckWrites(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	store := newSlowResultStore()
	sink := NewStoreSink(store, nil, logging.New(zap.New(core)))
	sink.timeout = 20 * time.Millisecond
	drain := runSink(t, sink)

	sink.Publish(context.Background(), Event{MatchID: "m3", Kind: EventMatchEnded, Payload: MatchEndedPayload{Summary: domain.MatchSummary{MatchID: "m3"}}})
	drain()

	assert.Empty(t, store.matches)
	require.Equal(t, 1, logs.FilterMessageSnippet("persist match m3").Len())
	assert.Contains(t, logs.All()[0].Message, context.DeadlineExceeded.Error())
}

func TestStoreSinkDropsWhenQueueIsFull(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewStoreSink(&fakeResultStore{}, nil, logging.New(zap.New(core)))

	ev := Event{MatchID: "m4", Kind: EventRoundEnded, Payload: RoundEndedPayload{Result: domain.RoundResult{MatchID: "m4"}}}
	for i := 0; i < storeQueueSize; i++ {
		sink.Publish(context.Background(), ev)
	}
	assert.Equal(t, 0, logs.Len())

	sink.Publish(context.Background(), ev)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)
	assert.Contains(t, logs.All()[0].Message, "queue full")
}

func TestStoreSinkIgnoresEventsAfterClose(t *testing.T) {
	store := &fakeResultStore{}
	sink := NewStoreSink(store, nil, nil)
	drain := runSink(t, sink)
	drain()

	assert.NotPanics(t, func() {
		sink.Publish(context.Background(), Event{MatchID: "m5", Kind: EventMatchEnded, Payload: MatchEndedPayload{Summary: domain.MatchSummary{MatchID: "m5"}}})
		sink.Close()
	})
	assert.Empty(t, store.matches)
}

func TestSafePublishRecoversAndLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	boom := SinkFunc(func(context.Context, Event) { panic("boom") })

	assert.NotPanics(t, func() {
		safePublish(context.Background(), boom, logging.New(zap.New(core)), Event{Kind: EventDamage})
	})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)
}

func TestMatchDeliversEventsToStoreSink(t *testing.T) {
	store := &fakeResultStore{}
	sink := NewStoreSink(store, nil, nil)
	drain := runSink(t, sink)
	h := newHarness(t, testMode(1, 1, 1, 1))
	h.m.sink = MultiSink{h.rec, sink}

	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)
	h.toCombat()
	require.NoError(t, h.m.Eliminate("d", "a"))
	drain()

	require.Len(t, store.rounds, 1)
	require.Len(t, store.matches, 1)
	assert.Equal(t, domain.TeamAlpha, store.matches[0].WinnerTeam)
	assert.Equal(t, domain.MatchEndScoreLimit, store.matches[0].Reason)
}

func TestSlowStoreDoesNotHoldUpEndMatch(t *testing.T) {
	store := newSlowResultStore()
	sink := NewStoreSink(store, nil, nil)
	drain := runSink(t, sink)
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.m.sink = MultiSink{h.rec, sink}
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)

	ended := make(chan bool, 1)
	go func() { ended <- h.m.EndMatch(domain.MatchEndAdmin) }()
	select {
	case ok := <-ended:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("EndMatch waited on the result store")
	}
	assert.Equal(t, domain.MatchEnded, h.m.State())

	select {
	case <-store.started:
	case <-time.After(time.Second):
		t.Fatal("match summary never reached the store")
	}
	close(store.release)
	drain()
	require.Len(t, store.matches, 1)
	assert.Equal(t, domain.MatchEndAdmin, store.matches[0].Reason)
}
