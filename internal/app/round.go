package app

import (
	"time"

	"spikeline/internal/domain"
	"spikeline/internal/timer"
)

type roundState struct {
	number         int
	phase          domain.RoundPhase
	startedAt      time.Time
	buyDeadline    time.Time
	combatDeadline time.Time
	endedAt        time.Time
	winner         domain.Side
	reason         domain.RoundEndReason
	firstBlood     bool
	// damagers maps a victim to everyone who hurt them this life, for assists.
	damagers map[string]map[string]struct{}

	buyTimer   *timer.Timer
	roundTimer *timer.Timer
	syncTimer  *timer.Timer
}

func (r *roundState) live() bool {
	return r.phase == domain.PhaseBuy || r.phase == domain.PhaseCombat
}

// roundView exposes live round totals to the mode rules.
type roundView struct{ m *Match }

func (v roundView) Alive(side domain.Side) int {
	t := v.m.teamOn(side)
	if t == nil {
		return 0
	}
	n := 0
	for _, p := range t.members {
		if p.Alive {
			n++
		}
	}
	return n
}

func (v roundView) RoundDamage(side domain.Side) int {
	return v.sum(side, func(s domain.Stats) int { return s.Damage })
}

func (v roundView) RoundHits(side domain.Side) int {
	return v.sum(side, func(s domain.Stats) int { return s.Hits })
}

func (v roundView) sum(side domain.Side, field func(domain.Stats) int) int {
	t := v.m.teamOn(side)
	if t == nil {
		return 0
	}
	total := 0
	for _, p := range t.members {
		total += field(p.Round)
	}
	return total
}

// startRound enters the buy phase of m.round.number.
func (m *Match) startRound() {
	r := &m.round
	n := r.number
	now := m.timers.Now()
	buy, _ := m.mode.PhaseTimes(m.layout)

	r.phase = domain.PhaseBuy
	r.startedAt = now
	r.buyDeadline = now.Add(buy)
	r.damagers = make(map[string]map[string]struct{})

	m.emit(EventRoundStarted, RoundStartedPayload{
		Round:       n,
		BuyDeadline: r.buyDeadline,
		Scores: map[domain.Side]int{
			domain.SideAttacker: m.teamOn(domain.SideAttacker).score,
			domain.SideDefender: m.teamOn(domain.SideDefender).score,
		},
	})

	for _, t := range m.teams {
		grant := domain.RoundGrant(n, t.lossStreak)
		for i, p := range t.members {
			p.Round = domain.Stats{}
			p.Respawn(m.layout.SpawnPoint(t.side, i))
			if grant > 0 {
				p.AddCredits(grant)
			}
			m.emit(EventTeleport, TeleportPayload{ParticipantID: p.ID, Position: p.Position}, p.ID)
			m.emit(EventLoadout, loadoutOf(p), p.ID)
		}
	}

	m.spike = spike{state: domain.ObjectiveUnspawned}
	if m.mode.Rules.ObjectiveEnabled() {
		m.spawnSpike()
	}

	r.buyTimer = m.timers.After("buy", buy, func() { m.onBuyTimeout(n) })
	r.syncTimer = m.timers.Every("sync", m.syncInterval, func() { m.onClockSync(n) })
	m.logger.Debug("round %d buy phase until %s", n, r.buyDeadline.Format(time.RFC3339))
}

func (m *Match) onBuyTimeout(n int) {
	if m.state != domain.MatchActive || m.round.number != n || m.round.phase != domain.PhaseBuy {
		return
	}
	m.enterCombat()
}

func (m *Match) enterCombat() {
	r := &m.round
	n := r.number
	_, roundTime := m.mode.PhaseTimes(m.layout)
	r.phase = domain.PhaseCombat
	r.combatDeadline = m.timers.Now().Add(roundTime)
	r.roundTimer = m.timers.After("round", roundTime, func() { m.onRoundTimeout(n) })
	m.emit(EventCombatStarted, CombatStartedPayload{Round: n, Deadline: r.combatDeadline})

	if res, ok := domain.CheckElimination(roundView{m}); ok {
		m.resolveRound(res)
	}
}

func (m *Match) onRoundTimeout(n int) {
	if m.state != domain.MatchActive || m.round.number != n || m.round.phase != domain.PhaseCombat {
		return
	}
	if m.spike.state == domain.ObjectivePlanted {
		return
	}
	m.resolveRound(m.mode.Rules.OnTimeout(roundView{m}))
}

func (m *Match) onClockSync(n int) {
	r := &m.round
	if m.state != domain.MatchActive || r.number != n || !r.live() {
		return
	}
	now := m.timers.Now()
	deadline := r.buyDeadline
	if r.phase == domain.PhaseCombat {
		deadline = r.combatDeadline
		if m.spike.state == domain.ObjectivePlanted {
			deadline = m.spike.plantedAt.Add(SpikeFuse)
		}
	}
	m.emit(EventClockSync, ClockSyncPayload{Round: n, Phase: r.phase, Remaining: max(deadline.Sub(now), 0)})
}

// resolveRound ends the live round exactly once. It returns false if the round was already over.
func (m *Match) resolveRound(res domain.Resolution) bool {
	r := &m.round
	if m.state != domain.MatchActive || !r.live() {
		return false
	}
	r.phase = domain.PhaseEnded
	r.winner = res.Winner
	r.reason = res.Reason
	r.endedAt = m.timers.Now()

	r.buyTimer.Stop()
	r.roundTimer.Stop()
	r.syncTimer.Stop()
	m.spike.fuse.Stop()

	attackers := m.sideRoundStats(domain.SideAttacker)
	defenders := m.sideRoundStats(domain.SideDefender)
	for _, t := range m.teams {
		for _, p := range t.members {
			p.MergeRoundStats()
		}
	}
	m.endRound(res, attackers, defenders)
	return true
}

func (m *Match) sideRoundStats(side domain.Side) domain.SideRoundStats {
	t := m.teamOn(side)
	out := domain.SideRoundStats{Team: t.name}
	for _, p := range t.members {
		out.Kills += p.Round.Kills
		out.Deaths += p.Round.Deaths
		out.Damage += p.Round.Damage
		if p.Alive {
			out.Alive++
		}
	}
	return out
}

func loadoutOf(p *domain.Participant) LoadoutPayload {
	return LoadoutPayload{
		ParticipantID: p.ID,
		Items:         append([]string(nil), p.Loadout...),
		Armor:         p.Armor,
		Credits:       p.Credits,
		UltPoints:     p.UltPoints,
	}
}
