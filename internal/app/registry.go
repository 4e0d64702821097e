package app

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"

	"spikeline/internal/domain"
	"spikeline/internal/logging"
)

var ErrUnknownMatch = errors.New("match not found")

// RegistryOptions are shared by every match the registry creates.
type RegistryOptions struct {
	Clock       clockwork.Clock
	Logger      runtime.Logger
	Sink        Sink
	Shop        domain.Shop
	SettleDelay time.Duration
	// NewID generates match ids. Defaults to random UUIDs.
	NewID func() string
	Seed  int64
}

// Registry indexes matches and participants for a standalone host.
// It never holds its own lock while calling into a match.
type Registry struct {
	opts RegistryOptions

	mu      sync.RWMutex
	matches map[string]*Match
	players map[string]*domain.Participant
	rngMu   sync.Mutex
	rng     *rand.Rand
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Registry{
		opts:    opts,
		matches: make(map[string]*Match),
		players: make(map[string]*domain.Participant),
		rng:     rand.New(rand.NewSource(opts.Seed)),
	}
}

// CreateMatch registers a new waiting match.
func (r *Registry) CreateMatch(layout domain.Layout, mode domain.Mode) (*Match, error) {
	r.rngMu.Lock()
	seed := r.rng.Int63()
	r.rngMu.Unlock()

	m, err := NewMatch(Options{
		ID:          r.opts.NewID(),
		Layout:      layout,
		Mode:        mode,
		Shop:        r.opts.Shop,
		Clock:       r.opts.Clock,
		Rand:        rand.New(rand.NewSource(seed)),
		Logger:      r.opts.Logger,
		Sink:        r.opts.Sink,
		SettleDelay: r.opts.SettleDelay,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.matches[m.ID()] = m
	r.mu.Unlock()
	r.opts.Logger.Info("created match %s (%s on %s)", m.ID(), mode.Name, layout.Name)
	return m, nil
}

// Match looks up a match by id.
func (r *Registry) Match(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	return m, ok
}

// Matches returns every registered match ordered by id.
func (r *Registry) Matches() []*Match {
	r.mu.RLock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Participant returns the participant for id, creating it on first sight. name is only used
// on creation (falling back to id); a known participant keeps the name it was created with.
func (r *Registry) Participant(id, name string) *domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		if name == "" {
			name = id
		}
		p = domain.NewParticipant(id, name)
		r.players[id] = p
	}
	return p
}

// LookupParticipant returns a known participant.
func (r *Registry) LookupParticipant(id string) (*domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	return p, ok
}

// Join moves a player into a match, leaving any match they are currently in.
func (r *Registry) Join(matchID, playerID, name string, side domain.Side) error {
	return r.join(matchID, playerID, name, side, true)
}

// place joins a player only if they are not in any match. The matchmaker uses it so that a
// stale ticket can never pull someone out of a live match.
func (r *Registry) place(matchID, playerID, name string, side domain.Side) error {
	return r.join(matchID, playerID, name, side, false)
}

func (r *Registry) join(matchID, playerID, name string, side domain.Side, move bool) error {
	m, ok := r.Match(matchID)
	if !ok {
		return ErrUnknownMatch
	}
	p := r.Participant(playerID, name)
	if current := p.MatchID(); current != "" && current != matchID {
		if !move {
			return ErrAlreadyInMatch
		}
		if old, ok := r.Match(current); ok {
			if err := old.RemoveParticipant(playerID); err != nil && !errors.Is(err, ErrNotInMatch) {
				return err
			}
		}
		p.DetachMatch(current)
	}
	return m.AddParticipant(p, side)
}

// Spectate attaches a player to a match as a spectator.
func (r *Registry) Spectate(matchID, playerID, name string) error {
	m, ok := r.Match(matchID)
	if !ok {
		return ErrUnknownMatch
	}
	return m.AddSpectator(r.Participant(playerID, name))
}

// Leave removes a player from their current match.
func (r *Registry) Leave(playerID string) error {
	p, ok := r.LookupParticipant(playerID)
	if !ok || p.MatchID() == "" {
		return ErrNotInMatch
	}
	m, ok := r.Match(p.MatchID())
	if !ok {
		return ErrUnknownMatch
	}
	return m.RemoveParticipant(playerID)
}

// EndMatch force-ends a match.
func (r *Registry) EndMatch(id string, reason domain.MatchEndReason) error {
	m, ok := r.Match(id)
	if !ok {
		return ErrUnknownMatch
	}
	m.EndMatch(reason)
	return nil
}

// Advance fires due timers on every match and returns the number of callbacks run.
func (r *Registry) Advance() int {
	fired := 0
	for _, m := range r.Matches() {
		fired += m.Advance()
	}
	return fired
}

// Reap forgets ended matches and returns how many were removed.
func (r *Registry) Reap() int {
	var ended []string
	for _, m := range r.Matches() {
		if m.State() == domain.MatchEnded {
			ended = append(ended, m.ID())
		}
	}
	if len(ended) == 0 {
		return 0
	}
	r.mu.Lock()
	for _, id := range ended {
		delete(r.matches, id)
	}
	r.mu.Unlock()
	r.opts.Logger.Debug("reaped %d ended matches", len(ended))
	return len(ended)
}
