package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"

	"spikeline/internal/domain"
	"spikeline/internal/logging"
	"spikeline/internal/timer"
)

const (
	// DefaultSettleDelay separates the end of one round from the start of the next.
	DefaultSettleDelay = 5 * time.Second
	// DefaultSyncInterval is how often clients get a clock sync during a live round.
	DefaultSyncInterval = 10 * time.Second
	// SpikeFuse is the time between plant and detonation.
	SpikeFuse = 45 * time.Second
	// InteractionRange is the maximum distance for defusing or picking up the spike.
	InteractionRange = 2.0
)

var (
	ErrInvalidMode      = errors.New("invalid mode parameters")
	ErrMatchNotWaiting  = errors.New("match is not accepting participants")
	ErrMatchFull        = errors.New("match is full")
	ErrAlreadyInMatch   = errors.New("participant already in a match")
	ErrNotInMatch       = errors.New("participant not in this match")
	ErrMatchNotActive   = errors.New("match is not active")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrRoundNotLive     = errors.New("round is not in progress")
	ErrWrongPhase       = errors.New("action not allowed in the current round phase")
	ErrInvalidSide      = errors.New("invalid side")
	ErrNotAlive         = errors.New("participant is not alive")
)

// Options configures a Match.
type Options struct {
	ID     string
	Layout domain.Layout
	Mode   domain.Mode
	Shop   domain.Shop
	Clock  clockwork.Clock
	Rand   *rand.Rand
	Logger runtime.Logger
	Sink   Sink
	// Context is handed to sinks on every publish.
	Context      context.Context
	SettleDelay  time.Duration
	SyncInterval time.Duration
}

type team struct {
	name       domain.Team
	side       domain.Side
	members    []*domain.Participant
	score      int
	lossStreak int
}

// Match runs one round-based contest. All methods are safe for concurrent use; every state
// transition, including timer expiry, happens under the match lock.
type Match struct {
	id           string
	layout       domain.Layout
	mode         domain.Mode
	shop         domain.Shop
	rng          *rand.Rand
	logger       runtime.Logger
	sink         Sink
	ctx          context.Context
	settleDelay  time.Duration
	syncInterval time.Duration

	mu        sync.Mutex
	deliverMu sync.Mutex
	outbox    []Event

	timers     *timer.Scheduler
	state      domain.MatchState
	teams      [2]*team
	spectators map[string]*domain.Participant
	round      roundState
	spike      spike
	swapped    bool
	nextRound  *timer.Timer
	history    []domain.RoundResult
	departed   []domain.PlayerLine
	createdAt  time.Time
	startedAt  time.Time
	endedAt    time.Time
	endReason  domain.MatchEndReason
	summary    *domain.MatchSummary
}

// NewMatch validates the mode and returns a match in the Waiting state.
func NewMatch(opts Options) (*Match, error) {
	mode := opts.Mode
	if mode.MinPerTeam < 1 || mode.MaxPerTeam < mode.MinPerTeam || mode.RoundsToWin < 1 {
		return nil, ErrInvalidMode
	}
	if mode.Rules == nil {
		mode.Rules = domain.SpikeRules{}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Shop == nil {
		opts.Shop = domain.DefaultShop()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}

	timers := timer.New(opts.Clock)
	m := &Match{
		id:           opts.ID,
		layout:       opts.Layout,
		mode:         mode,
		shop:         opts.Shop,
		rng:          opts.Rand,
		logger:       opts.Logger.WithFields(map[string]interface{}{"match_id": opts.ID, "mode": mode.Name}),
		sink:         opts.Sink,
		ctx:          opts.Context,
		settleDelay:  opts.SettleDelay,
		syncInterval: opts.SyncInterval,
		timers:       timers,
		state:        domain.MatchWaiting,
		teams: [2]*team{
			{name: domain.TeamAlpha, side: domain.SideAttacker},
			{name: domain.TeamBravo, side: domain.SideDefender},
		},
		spectators: make(map[string]*domain.Participant),
		round:      roundState{phase: domain.PhaseWaiting},
		spike:      spike{state: domain.ObjectiveUnspawned},
		createdAt:  timers.Now(),
	}
	return m, nil
}

// ID returns the match id.
func (m *Match) ID() string { return m.id }

// Mode returns the match mode.
func (m *Match) Mode() domain.Mode { return m.mode }

// Layout returns the arena layout.
func (m *Match) Layout() domain.Layout { return m.layout }

func (m *Match) lock() { m.mu.Lock() }

// unlock releases the match and delivers queued events in order. The delivery lock is taken
// before the match lock is dropped so concurrent operations cannot reorder their events.
func (m *Match) unlock() {
	events := m.outbox
	m.outbox = nil
	m.deliverMu.Lock()
	m.mu.Unlock()
	defer m.deliverMu.Unlock()
	for _, ev := range events {
		safePublish(m.ctx, m.sink, m.logger, ev)
	}
}

func (m *Match) emit(kind EventKind, payload any, recipients ...string) {
	m.outbox = append(m.outbox, Event{MatchID: m.id, Kind: kind, Payload: payload, Recipients: recipients})
}

func (m *Match) teamOn(side domain.Side) *team {
	for _, t := range m.teams {
		if t.side == side {
			return t
		}
	}
	return nil
}

func (m *Match) find(id string) (*domain.Participant, *team) {
	for _, t := range m.teams {
		for _, p := range t.members {
			if p.ID == id {
				return p, t
			}
		}
	}
	return nil, nil
}

func (m *Match) headcount() int {
	return len(m.teams[0].members) + len(m.teams[1].members)
}

func (m *Match) scores() map[domain.Team]int {
	return map[domain.Team]int{m.teams[0].name: m.teams[0].score, m.teams[1].name: m.teams[1].score}
}

// AddParticipant puts p on the preferred side, or on the other side when the preferred one is full.
// SideNone balances onto the smaller side. Once both sides reach the mode minimum the match starts.
func (m *Match) AddParticipant(p *domain.Participant, preferred domain.Side) error {
	m.lock()
	defer m.unlock()

	if existing, _ := m.find(p.ID); existing != nil || m.spectators[p.ID] != nil || p.MatchID() != "" {
		return ErrAlreadyInMatch
	}
	if m.full() {
		return ErrMatchFull
	}
	if m.state != domain.MatchWaiting {
		return ErrMatchNotWaiting
	}
	side, err := m.pickSide(preferred)
	if err != nil {
		return err
	}
	if !p.AttachMatch(m.id) {
		return ErrAlreadyInMatch
	}

	p.ResetForMatch()
	p.Side = side
	p.Alive = false
	p.Health = domain.MaxHealth
	t := m.teamOn(side)
	t.members = append(t.members, p)

	m.logger.Debug("participant %s joined %s", p.ID, side)
	m.emit(EventParticipantJoined, ParticipantJoinedPayload{ParticipantID: p.ID, Name: p.Name, Side: side, Team: t.name})

	if m.canStart() {
		m.state = domain.MatchStarting
		m.emit(EventMatchStarting, MatchStartingPayload{
			Attackers: len(m.teamOn(domain.SideAttacker).members),
			Defenders: len(m.teamOn(domain.SideDefender).members),
		})
		m.startMatch()
	}
	return nil
}

func (m *Match) full() bool {
	for _, t := range m.teams {
		if len(t.members) < m.mode.MaxPerTeam {
			return false
		}
	}
	return true
}

func (m *Match) pickSide(preferred domain.Side) (domain.Side, error) {
	capacity := m.mode.MaxPerTeam
	attackers := len(m.teamOn(domain.SideAttacker).members)
	defenders := len(m.teamOn(domain.SideDefender).members)

	switch preferred {
	case domain.SideAttacker, domain.SideDefender:
		if len(m.teamOn(preferred).members) < capacity {
			return preferred, nil
		}
		return preferred.Opposite(), nil
	case domain.SideNone:
		if attackers <= defenders {
			return domain.SideAttacker, nil
		}
		return domain.SideDefender, nil
	default:
		return domain.SideNone, ErrInvalidSide
	}
}

func (m *Match) canStart() bool {
	for _, t := range m.teams {
		if len(t.members) < m.mode.MinPerTeam {
			return false
		}
	}
	return true
}

// AddSpectator attaches p to the match without a side.
func (m *Match) AddSpectator(p *domain.Participant) error {
	m.lock()
	defer m.unlock()

	if m.state == domain.MatchEnded {
		return ErrMatchNotActive
	}
	if existing, _ := m.find(p.ID); existing != nil || m.spectators[p.ID] != nil {
		return ErrAlreadyInMatch
	}
	if !p.AttachMatch(m.id) {
		return ErrAlreadyInMatch
	}
	p.Side = domain.SideNone
	p.Alive = false
	m.spectators[p.ID] = p
	m.emit(EventSpectatorJoined, SpectatorJoinedPayload{ParticipantID: p.ID, Name: p.Name})
	return nil
}

// RemoveParticipant detaches a participant or spectator. An active match that drops below the
// mode minimum ends with MatchEndNotEnoughPlayers; otherwise an emptied side during combat
// resolves the round by elimination.
func (m *Match) RemoveParticipant(id string) error {
	m.lock()
	defer m.unlock()

	p, t := m.find(id)
	if p == nil {
		sp, ok := m.spectators[id]
		if !ok {
			return ErrNotInMatch
		}
		delete(m.spectators, id)
		sp.DetachMatch(m.id)
		m.emit(EventParticipantLeft, ParticipantLeftPayload{ParticipantID: id})
		return nil
	}

	for i, member := range t.members {
		if member == p {
			t.members = append(t.members[:i], t.members[i+1:]...)
			break
		}
	}
	if m.spike.carrier == p {
		m.dropSpike(p.Position)
	}
	if m.round.live() {
		p.MergeRoundStats()
	}
	if m.state == domain.MatchActive {
		m.departed = append(m.departed, domain.PlayerLine{
			ID:      p.ID,
			Name:    p.Name,
			Team:    t.name,
			Side:    t.side,
			Credits: p.Credits,
			Stats:   p.Match,
			Left:    true,
		})
	}
	p.Side = domain.SideNone
	p.Alive = false
	p.DetachMatch(m.id)

	m.logger.Debug("participant %s left", id)
	m.emit(EventParticipantLeft, ParticipantLeftPayload{ParticipantID: id})

	if m.state != domain.MatchActive {
		return nil
	}
	if m.headcount() < m.mode.MinPlayers() {
		m.endMatch(domain.MatchEndNotEnoughPlayers)
		return nil
	}
	if m.round.phase == domain.PhaseCombat {
		if res, ok := domain.CheckElimination(roundView{m}); ok {
			m.resolveRound(res)
		}
	}
	return nil
}

// StartMatch force-starts a waiting match that has at least one participant per side.
func (m *Match) StartMatch() error {
	m.lock()
	defer m.unlock()

	if m.state != domain.MatchWaiting && m.state != domain.MatchStarting {
		return ErrMatchNotWaiting
	}
	for _, t := range m.teams {
		if len(t.members) == 0 {
			return ErrNotEnoughPlayers
		}
	}
	m.startMatch()
	return nil
}

func (m *Match) startMatch() {
	m.state = domain.MatchActive
	m.startedAt = m.timers.Now()
	m.round = roundState{number: 1}
	m.logger.Info("match started on %s with %d participants", m.layout.Name, m.headcount())
	m.emit(EventMatchStarted, MatchStartedPayload{Map: m.layout.Name, Mode: m.mode.Name})
	m.startRound()
}

// EndRound resolves the live round with the given winner.
func (m *Match) EndRound(reason domain.RoundEndReason, winner domain.Side) error {
	m.lock()
	defer m.unlock()

	if m.state != domain.MatchActive {
		return ErrMatchNotActive
	}
	if winner != domain.SideAttacker && winner != domain.SideDefender {
		return ErrInvalidSide
	}
	if !m.resolveRound(domain.Resolution{Winner: winner, Reason: reason}) {
		return ErrRoundNotLive
	}
	return nil
}

// endRound does the match bookkeeping for a resolved round and decides whether to continue.
func (m *Match) endRound(res domain.Resolution, attackers, defenders domain.SideRoundStats) {
	winner := m.teamOn(res.Winner)
	loser := m.teamOn(res.Winner.Opposite())
	winner.score++
	winner.lossStreak = 0
	loser.lossStreak++

	r := &m.round
	result := domain.RoundResult{
		MatchID:    m.id,
		Number:     r.number,
		Winner:     res.Winner,
		WinnerTeam: winner.name,
		Reason:     res.Reason,
		Attackers:  attackers,
		Defenders:  defenders,
		Scores:     m.scores(),
		StartedAt:  r.startedAt,
		EndedAt:    r.endedAt,
	}
	m.history = append(m.history, result)
	m.logger.Info("round %d won by %s (%s), score %d-%d", r.number, winner.name, res.Reason, m.teams[0].score, m.teams[1].score)
	m.emit(EventRoundEnded, RoundEndedPayload{Result: result})

	switch {
	case winner.score >= m.mode.RoundsToWin:
		m.endMatch(domain.MatchEndScoreLimit)
		return
	case m.mode.MaxRounds > 0 && r.number >= m.mode.MaxRounds:
		m.endMatch(domain.MatchEndMaxRounds)
		return
	}

	if !m.swapped && r.number == m.mode.SwapAfterRound() {
		m.swapSides()
	}
	n := r.number
	m.nextRound = m.timers.After("settle", m.settleDelay, func() { m.onSettle(n) })
}

func (m *Match) swapSides() {
	m.swapped = true
	sides := make(map[domain.Team]domain.Side, len(m.teams))
	for _, t := range m.teams {
		t.side = t.side.Opposite()
		for _, p := range t.members {
			p.Side = t.side
		}
		sides[t.name] = t.side
	}
	m.logger.Info("sides swapped after round %d", m.round.number)
	m.emit(EventSidesSwapped, SidesSwappedPayload{AfterRound: m.round.number, Sides: sides})
}

func (m *Match) onSettle(n int) {
	if m.state != domain.MatchActive || m.round.number != n || m.round.phase != domain.PhaseEnded {
		return
	}
	m.round = roundState{number: n + 1}
	m.startRound()
}

// EndMatch terminates the match, cancelling every pending timer before it returns.
// It reports whether this call ended the match.
func (m *Match) EndMatch(reason domain.MatchEndReason) bool {
	m.lock()
	defer m.unlock()
	if m.state == domain.MatchEnded {
		return false
	}
	m.endMatch(reason)
	return true
}

func (m *Match) endMatch(reason domain.MatchEndReason) {
	if m.state == domain.MatchEnded {
		return
	}
	m.timers.StopAll()
	if m.round.live() {
		for _, t := range m.teams {
			for _, p := range t.members {
				p.MergeRoundStats()
			}
		}
		m.round.phase = domain.PhaseEnded
	}
	m.state = domain.MatchEnded
	m.endReason = reason
	m.endedAt = m.timers.Now()

	summary := m.buildSummary(reason)
	m.summary = &summary

	for _, t := range m.teams {
		for _, p := range t.members {
			p.Side = domain.SideNone
			p.Alive = false
			p.DetachMatch(m.id)
		}
		t.members = nil
	}
	for id, sp := range m.spectators {
		sp.DetachMatch(m.id)
		delete(m.spectators, id)
	}
	m.spike.carrier = nil

	m.logger.Info("match ended (%s), winner %q, score %d-%d", reason, summary.WinnerTeam, m.teams[0].score, m.teams[1].score)
	m.emit(EventMatchEnded, MatchEndedPayload{Summary: summary})
}

func (m *Match) buildSummary(reason domain.MatchEndReason) domain.MatchSummary {
	summary := domain.MatchSummary{
		MatchID:   m.id,
		Map:       m.layout.Name,
		Mode:      m.mode.Name,
		Reason:    reason,
		Scores:    m.scores(),
		Rounds:    append([]domain.RoundResult(nil), m.history...),
		StartedAt: m.startedAt,
		EndedAt:   m.endedAt,
	}
	a, b := m.teams[0], m.teams[1]
	switch {
	case a.score > b.score:
		summary.WinnerTeam = a.name
	case b.score > a.score:
		summary.WinnerTeam = b.name
	default:
		summary.Draw = true
	}
	for _, t := range m.teams {
		for _, p := range t.members {
			summary.Players = append(summary.Players, domain.PlayerLine{
				ID:      p.ID,
				Name:    p.Name,
				Team:    t.name,
				Side:    t.side,
				Credits: p.Credits,
				Stats:   p.Match,
			})
		}
	}
	summary.Players = append(summary.Players, m.departed...)
	return summary
}

// Advance fires every timer that is due. Hosts call it from their tick loop.
func (m *Match) Advance() int {
	m.lock()
	defer m.unlock()
	if m.state == domain.MatchEnded {
		return 0
	}
	return m.timers.Fire()
}
