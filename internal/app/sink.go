package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"spikeline/internal/domain"
	"spikeline/internal/logging"
	"spikeline/internal/ports"
)

// Sink receives match events after the state change that produced them has been committed.
// Publish runs outside the match lock but must not call back into the same match synchronously.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (ms MultiSink) Publish(ctx context.Context, ev Event) {
	for _, s := range ms {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) {}

// safePublish isolates a failing sink so it cannot take the match down with it.
func safePublish(ctx context.Context, sink Sink, logger runtime.Logger, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event sink panicked on %s: %v", ev.Kind, r)
		}
	}()
	sink.Publish(ctx, ev)
}

const (
	storeQueueSize    = 256
	storeWriteTimeout = 10 * time.Second
)

// StoreSink hands finished rounds and matches to durable storage and the archive.
// Publish only queues the event; Run performs the writes, each bounded by its own timeout.
type StoreSink struct {
	store   ports.ResultStore
	archive ports.Archive
	logger  runtime.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
}

// NewStoreSink returns a sink writing to store and archive. Either may be nil.
func NewStoreSink(store ports.ResultStore, archive ports.Archive, logger runtime.Logger) *StoreSink {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StoreSink{
		store:   store,
		archive: archive,
		logger:  logger,
		timeout: storeWriteTimeout,
		queue:   make(chan Event, storeQueueSize),
	}
}

func (s *StoreSink) Publish(_ context.Context, ev Event) {
	switch ev.Payload.(type) {
	case RoundEndedPayload, MatchEndedPayload:
	default:
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("result sink closed, dropping %s of %s", ev.Kind, ev.MatchID)
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Error("result queue full, dropping %s of %s", ev.Kind, ev.MatchID)
	}
}

// Run writes queued events until Close has been called and the queue is drained, or ctx is done.
func (s *StoreSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.queue:
			if !ok {
				return
			}
			s.write(ctx, ev)
		}
	}
}

// Close stops accepting events. Run returns once the events already queued are written.
func (s *StoreSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

func (s *StoreSink) write(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	switch p := ev.Payload.(type) {
	case RoundEndedPayload:
		if s.store == nil {
			return
		}
		if err := s.store.SaveRound(ctx, p.Result); err != nil {
			s.logger.Error("save round %d of %s: %v", p.Result.Number, ev.MatchID, err)
		}
	case MatchEndedPayload:
		if err := s.saveMatch(ctx, p.Summary); err != nil {
			s.logger.Error("persist match %s: %v", ev.MatchID, err)
		}
	}
}

func (s *StoreSink) saveMatch(ctx context.Context, summary domain.MatchSummary) error {
	var errs []error
	if s.archive != nil {
		key, err := s.archive.Archive(ctx, summary)
		if err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		} else {
			s.logger.Debug("archived match %s to %s", summary.MatchID, key)
		}
	}
	if s.store != nil {
		if err := s.store.SaveMatch(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	return errors.Join(errs...)
}
