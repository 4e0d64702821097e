package domain

import (
	"sync"
	"time"
)

// Stats are additive combat counters.
type Stats struct {
	Kills         int `json:"kills"`
	Deaths        int `json:"deaths"`
	Assists       int `json:"assists"`
	Damage        int `json:"damage"`
	Hits          int `json:"hits"`
	HeadshotKills int `json:"headshot_kills"`
	PlantsDefuses int `json:"plants_defuses"`
	FirstBloods   int `json:"first_bloods"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Kills += o.Kills
	s.Deaths += o.Deaths
	s.Assists += o.Assists
	s.Damage += o.Damage
	s.Hits += o.Hits
	s.HeadshotKills += o.HeadshotKills
	s.PlantsDefuses += o.PlantsDefuses
	s.FirstBloods += o.FirstBloods
}

// Participant is a player's combat and economic state.
// Everything except the match reference is owned by the match the participant is attached to
// and must only be mutated under that match's lock.
type Participant struct {
	ID   string
	Name string

	Side      Side
	Alive     bool
	Health    int
	Armor     int
	Credits   int
	UltPoints int
	UltActive bool
	Position  Vec3
	Loadout   []string
	Cooldowns map[string]time.Time

	Round  Stats
	Match  Stats
	Career Stats

	mu      sync.Mutex
	matchID string
}

// NewParticipant returns an unattached participant.
func NewParticipant(id, name string) *Participant {
	return &Participant{ID: id, Name: name, Cooldowns: make(map[string]time.Time)}
}

// MatchID returns the id of the match holding the participant, or empty.
func (p *Participant) MatchID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.matchID
}

// AttachMatch records the owning match. It fails when the participant already belongs to another match.
func (p *Participant) AttachMatch(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.matchID != "" && p.matchID != id {
		return false
	}
	p.matchID = id
	return true
}

// DetachMatch clears the match reference if it still points at id.
func (p *Participant) DetachMatch(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.matchID == id {
		p.matchID = ""
	}
}

// ResetForMatch clears match scoped state and grants starting credits.
func (p *Participant) ResetForMatch() {
	p.Credits = StartingCredits
	p.UltPoints = 0
	p.UltActive = false
	p.Match = Stats{}
	p.Round = Stats{}
	p.Loadout = nil
	p.Cooldowns = make(map[string]time.Time)
}

// Respawn restores full health and moves the participant to pos.
func (p *Participant) Respawn(pos Vec3) {
	p.Alive = true
	p.Health = MaxHealth
	p.Armor = 0
	p.UltActive = false
	p.Position = pos
}

// AddCredits adjusts the balance, never going below zero.
func (p *Participant) AddCredits(delta int) {
	p.Credits = ClampCredits(p.Credits + delta)
}

// Spend deducts cost if the balance covers it.
func (p *Participant) Spend(cost int) bool {
	if cost < 0 || p.Credits < cost {
		return false
	}
	p.Credits -= cost
	return true
}

// AddUltPoints adjusts ultimate charge within [0, MaxUltPoints].
func (p *Participant) AddUltPoints(delta int) {
	p.UltPoints = ClampUltPoints(p.UltPoints + delta)
}

// MergeRoundStats folds round counters into match and career totals and clears them.
func (p *Participant) MergeRoundStats() {
	p.Match.Add(p.Round)
	p.Career.Add(p.Round)
	p.Round = Stats{}
}

// CooldownRemaining returns how long ability stays unavailable at now.
func (p *Participant) CooldownRemaining(ability string, now time.Time) time.Duration {
	until, ok := p.Cooldowns[ability]
	if !ok || !until.After(now) {
		return 0
	}
	return until.Sub(now)
}

// StartCooldown blocks ability until now+d.
func (p *Participant) StartCooldown(ability string, now time.Time, d time.Duration) {
	if p.Cooldowns == nil {
		p.Cooldowns = make(map[string]time.Time)
	}
	p.Cooldowns[ability] = now.Add(d)
}
