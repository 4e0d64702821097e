package app

import (
	"errors"
	"math/rand"
	"sort"
	"sync"

	"github.com/heroiclabs/nakama-common/runtime"

	"spikeline/internal/domain"
	"spikeline/internal/logging"
	"spikeline/internal/queue"
)

var (
	ErrUnknownMode = errors.New("unknown mode")
	ErrNoArenas    = errors.New("no arenas configured")
)

// Matchmaker turns full queues into matches.
type Matchmaker struct {
	registry *Registry
	queues   *queue.Manager
	arenas   []domain.Layout
	modes    map[string]domain.Mode
	logger   runtime.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewMatchmaker wires a queue manager to a registry. Queues must exist for every mode name.
func NewMatchmaker(registry *Registry, queues *queue.Manager, arenas []domain.Layout, modes map[string]domain.Mode, logger runtime.Logger, seed int64) *Matchmaker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Matchmaker{
		registry: registry,
		queues:   queues,
		arenas:   arenas,
		modes:    modes,
		logger:   logger,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Enqueue adds a player who is not currently in a match to a mode's queue.
func (mm *Matchmaker) Enqueue(mode, playerID, name string) (int, error) {
	if _, ok := mm.modes[mode]; !ok {
		return 0, ErrUnknownMode
	}
	if p, ok := mm.registry.LookupParticipant(playerID); ok && p.MatchID() != "" {
		return 0, ErrAlreadyInMatch
	}
	return mm.queues.Join(mode, playerID, name)
}

// Join puts a player straight into a match and drops any queue ticket they hold.
func (mm *Matchmaker) Join(matchID, playerID, name string, side domain.Side) error {
	if err := mm.registry.Join(matchID, playerID, name, side); err != nil {
		return err
	}
	if _, err := mm.queues.Leave(playerID); err != nil && !errors.Is(err, queue.ErrNotIn) {
		mm.logger.Warn("drop queue ticket of %s: %v", playerID, err)
	}
	return nil
}

// Dequeue removes a player from whichever queue holds them.
func (mm *Matchmaker) Dequeue(playerID string) error {
	_, err := mm.queues.Leave(playerID)
	return err
}

// Run creates matches for every mode with enough waiting players and returns how many were made.
// Players are placed on alternating sides in queue order.
func (mm *Matchmaker) Run() int {
	names := make([]string, 0, len(mm.modes))
	for name := range mm.modes {
		names = append(names, name)
	}
	sort.Strings(names)

	created := 0
	for _, name := range names {
		mode := mm.modes[name]
		need := mode.MinPlayers()
		for mm.queues.Size(name) >= need {
			tickets, ok := mm.queues.Pop(name, need)
			if !ok {
				break
			}
			if tickets = mm.unplaced(tickets); len(tickets) < need {
				mm.queues.Requeue(name, tickets)
				continue
			}
			layout, err := mm.pickArena()
			if err != nil {
				mm.queues.Requeue(name, tickets)
				mm.logger.Warn("matchmaking %s: %v", name, err)
				return created
			}
			m, err := mm.registry.CreateMatch(layout, mode)
			if err != nil {
				mm.queues.Requeue(name, tickets)
				mm.logger.Error("create %s match: %v", name, err)
				break
			}
			for i, tk := range tickets {
				side := domain.SideAttacker
				if i%2 == 1 {
					side = domain.SideDefender
				}
				if err := mm.registry.place(m.ID(), tk.PlayerID, tk.Name, side); err != nil {
					mm.logger.Warn("place %s into %s: %v", tk.PlayerID, m.ID(), err)
				}
			}
			created++
		}
	}
	return created
}

// unplaced drops tickets of players who reached a match some other way since queueing.
func (mm *Matchmaker) unplaced(tickets []queue.Ticket) []queue.Ticket {
	out := tickets[:0]
	for _, tk := range tickets {
		if p, ok := mm.registry.LookupParticipant(tk.PlayerID); ok && p.MatchID() != "" {
			mm.logger.Debug("dropping stale ticket of %s, already in %s", tk.PlayerID, p.MatchID())
			continue
		}
		out = append(out, tk)
	}
	return out
}

func (mm *Matchmaker) pickArena() (domain.Layout, error) {
	if len(mm.arenas) == 0 {
		return domain.Layout{}, ErrNoArenas
	}
	mm.rngMu.Lock()
	defer mm.rngMu.Unlock()
	return mm.arenas[mm.rng.Intn(len(mm.arenas))], nil
}
