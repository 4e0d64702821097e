package app

import (
	"sort"
	"time"

	"spikeline/internal/domain"
)

// MatchSnapshot is a point-in-time copy of a match for admin queries and labels.
type MatchSnapshot struct {
	ID         string                `json:"id"`
	Map        string                `json:"map"`
	Mode       string                `json:"mode"`
	State      domain.MatchState     `json:"state"`
	Round      RoundSnapshot         `json:"round"`
	Objective  ObjectiveSnapshot     `json:"objective"`
	Teams      []TeamSnapshot        `json:"teams"`
	Spectators []string              `json:"spectators"`
	History    []domain.RoundResult  `json:"history"`
	EndReason  domain.MatchEndReason `json:"end_reason,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

type RoundSnapshot struct {
	Number         int                   `json:"number"`
	Phase          domain.RoundPhase     `json:"phase"`
	StartedAt      time.Time             `json:"started_at"`
	BuyDeadline    time.Time             `json:"buy_deadline"`
	CombatDeadline time.Time             `json:"combat_deadline"`
	Winner         domain.Side           `json:"winner,omitempty"`
	Reason         domain.RoundEndReason `json:"reason,omitempty"`
}

type ObjectiveSnapshot struct {
	State       domain.ObjectiveState `json:"state"`
	CarrierID   string                `json:"carrier_id,omitempty"`
	Site        string                `json:"site,omitempty"`
	Position    domain.Vec3           `json:"position"`
	DetonatesAt time.Time             `json:"detonates_at"`
}

type TeamSnapshot struct {
	Team       domain.Team           `json:"team"`
	Side       domain.Side           `json:"side"`
	Score      int                   `json:"score"`
	LossStreak int                   `json:"loss_streak"`
	Members    []ParticipantSnapshot `json:"members"`
}

// ParticipantSnapshot is the economy and cooldown view of one participant.
type ParticipantSnapshot struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Side      domain.Side              `json:"side"`
	Alive     bool                     `json:"alive"`
	Health    int                      `json:"health"`
	Armor     int                      `json:"armor"`
	Credits   int                      `json:"credits"`
	UltPoints int                      `json:"ult_points"`
	UltActive bool                     `json:"ult_active"`
	Position  domain.Vec3              `json:"position"`
	Loadout   []string                 `json:"loadout"`
	Cooldowns map[string]time.Duration `json:"cooldowns"`
	Round     domain.Stats             `json:"round"`
	Match     domain.Stats             `json:"match"`
	Career    domain.Stats             `json:"career"`
}

// Team returns the snapshot of the team currently on side.
func (s MatchSnapshot) Team(side domain.Side) TeamSnapshot {
	for _, t := range s.Teams {
		if t.Side == side {
			return t
		}
	}
	return TeamSnapshot{}
}

// Snapshot copies the current match state.
func (m *Match) Snapshot() MatchSnapshot {
	m.lock()
	defer m.unlock()

	now := m.timers.Now()
	r := m.round
	snap := MatchSnapshot{
		ID:    m.id,
		Map:   m.layout.Name,
		Mode:  m.mode.Name,
		State: m.state,
		Round: RoundSnapshot{
			Number:         r.number,
			Phase:          r.phase,
			StartedAt:      r.startedAt,
			BuyDeadline:    r.buyDeadline,
			CombatDeadline: r.combatDeadline,
			Winner:         r.winner,
			Reason:         r.reason,
		},
		Objective: ObjectiveSnapshot{
			State:    m.spike.state,
			Site:     m.spike.site,
			Position: m.spike.position,
		},
		History:   append([]domain.RoundResult(nil), m.history...),
		EndReason: m.endReason,
		CreatedAt: m.createdAt,
	}
	if m.spike.carrier != nil {
		snap.Objective.CarrierID = m.spike.carrier.ID
	}
	if m.spike.state == domain.ObjectivePlanted {
		snap.Objective.DetonatesAt = m.spike.plantedAt.Add(SpikeFuse)
	}
	for _, t := range m.teams {
		ts := TeamSnapshot{Team: t.name, Side: t.side, Score: t.score, LossStreak: t.lossStreak}
		for _, p := range t.members {
			ts.Members = append(ts.Members, participantSnapshot(p, now))
		}
		snap.Teams = append(snap.Teams, ts)
	}
	for id := range m.spectators {
		snap.Spectators = append(snap.Spectators, id)
	}
	sort.Strings(snap.Spectators)
	return snap
}

// ParticipantSnapshot returns the economy and cooldown view of a roster member.
func (m *Match) ParticipantSnapshot(id string) (ParticipantSnapshot, bool) {
	m.lock()
	defer m.unlock()

	p, _ := m.find(id)
	if p == nil {
		return ParticipantSnapshot{}, false
	}
	return participantSnapshot(p, m.timers.Now()), true
}

// State returns the match lifecycle state.
func (m *Match) State() domain.MatchState {
	m.lock()
	defer m.unlock()
	return m.state
}

// Summary returns the final summary once the match has ended.
func (m *Match) Summary() (domain.MatchSummary, bool) {
	m.lock()
	defer m.unlock()
	if m.summary == nil {
		return domain.MatchSummary{}, false
	}
	return *m.summary, true
}

func participantSnapshot(p *domain.Participant, now time.Time) ParticipantSnapshot {
	cooldowns := make(map[string]time.Duration)
	for name := range p.Cooldowns {
		if left := p.CooldownRemaining(name, now); left > 0 {
			cooldowns[name] = left
		}
	}
	return ParticipantSnapshot{
		ID:        p.ID,
		Name:      p.Name,
		Side:      p.Side,
		Alive:     p.Alive,
		Health:    p.Health,
		Armor:     p.Armor,
		Credits:   p.Credits,
		UltPoints: p.UltPoints,
		UltActive: p.UltActive,
		Position:  p.Position,
		Loadout:   append([]string(nil), p.Loadout...),
		Cooldowns: cooldowns,
		Round:     p.Round,
		Match:     p.Match,
		Career:    p.Career,
	}
}
