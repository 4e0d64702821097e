package app

import (
	"errors"
	"sort"
	"time"

	"spikeline/internal/domain"
)

var (
	ErrInvalidDamage       = errors.New("damage must be positive")
	ErrUnknownItem         = errors.New("unknown item")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrOutsideBuyZone      = errors.New("participant is outside the buy zone")
	ErrUltimateNotReady    = errors.New("ultimate is not charged")
	ErrUltimateActive      = errors.New("ultimate already active")
	ErrAbilityCooldown     = errors.New("ability is on cooldown")
)

// Move records a position reported by the world layer.
func (m *Match) Move(id string, pos domain.Vec3) error {
	m.lock()
	defer m.unlock()

	p, _ := m.find(id)
	if p == nil {
		p = m.spectators[id]
	}
	if p == nil {
		return ErrNotInMatch
	}
	p.Position = pos
	return nil
}

func (m *Match) combatant(id string) (*domain.Participant, error) {
	p, _ := m.find(id)
	if p == nil {
		return nil, ErrNotInMatch
	}
	if !p.Alive {
		return nil, ErrNotAlive
	}
	return p, nil
}

// Damage applies a hit from attacker to victim during combat. The mode rules decide how much
// health it costs and may end the round on the spot; lethal damage counts as a kill.
func (m *Match) Damage(attackerID, victimID string, amount int, headshot bool) error {
	m.lock()
	defer m.unlock()

	if m.state != domain.MatchActive {
		return ErrMatchNotActive
	}
	if m.round.phase != domain.PhaseCombat {
		return ErrWrongPhase
	}
	if amount <= 0 {
		return ErrInvalidDamage
	}
	attacker, err := m.combatant(attackerID)
	if err != nil {
		return err
	}
	victim, err := m.combatant(victimID)
	if err != nil {
		return err
	}

	attacker.Round.Hits++
	dmg, res, decided := m.mode.Rules.OnDamage(roundView{m}, attacker, victim, amount)

	dealt := 0
	if dmg > 0 {
		health, armorLoss := domain.ArmoredDamage(dmg, victim.Armor)
		health = min(health, victim.Health)
		victim.Armor -= armorLoss
		victim.Health -= health
		dealt = health + armorLoss
		attacker.Round.Damage += dealt
		if attacker != victim && attacker.Side != victim.Side {
			set := m.round.damagers[victim.ID]
			if set == nil {
				set = make(map[string]struct{})
				m.round.damagers[victim.ID] = set
			}
			set[attacker.ID] = struct{}{}
		}
	}
	m.emit(EventDamage, DamagePayload{
		AttackerID: attacker.ID,
		VictimID:   victim.ID,
		Amount:     dealt,
		Health:     victim.Health,
		Armor:      victim.Armor,
		Headshot:   headshot,
	})

	if decided {
		m.resolveRound(res)
		return nil
	}
	if dmg > 0 && victim.Health <= 0 {
		m.kill(victim, attacker, headshot)
	}
	return nil
}

// Eliminate kills victim outright, for falls, ring-outs and other world deaths.
// An empty killerID, or one equal to the victim, is a self-elimination and grants no reward.
func (m *Match) Eliminate(victimID, killerID string) error {
	m.lock()
	defer m.unlock()

	if m.state != domain.MatchActive {
		return ErrMatchNotActive
	}
	if m.round.phase != domain.PhaseCombat {
		return ErrWrongPhase
	}
	victim, err := m.combatant(victimID)
	if err != nil {
		return err
	}
	var killer *domain.Participant
	if killerID != "" && killerID != victimID {
		if killer, _ = m.find(killerID); killer == nil {
			return ErrNotInMatch
		}
	}
	m.kill(victim, killer, false)
	return nil
}

func (m *Match) kill(victim, killer *domain.Participant, headshot bool) {
	r := &m.round
	victim.Alive = false
	victim.Health = 0
	victim.Loadout = nil
	victim.Round.Deaths++

	payload := KillPayload{VictimID: victim.ID}
	if killer != nil && killer != victim {
		payload.KillerID = killer.ID
		payload.Headshot = headshot
		killer.Round.Kills++
		if headshot {
			killer.Round.HeadshotKills++
		}
		if !r.firstBlood {
			r.firstBlood = true
			payload.FirstBlood = true
			killer.Round.FirstBloods++
		}
		killer.AddCredits(domain.KillReward)
		killer.AddUltPoints(1)
	}

	for id := range r.damagers[victim.ID] {
		if killer != nil && id == killer.ID {
			continue
		}
		if helper, _ := m.find(id); helper != nil {
			helper.Round.Assists++
			payload.Assists = append(payload.Assists, id)
		}
	}
	sort.Strings(payload.Assists)
	delete(r.damagers, victim.ID)

	if m.spike.carrier == victim {
		m.dropSpike(victim.Position)
	}
	m.emit(EventKill, payload)
	if killer != nil && killer != victim {
		m.emit(EventLoadout, loadoutOf(killer), killer.ID)
	}

	if res, ok := m.mode.Rules.OnDeath(roundView{m}, victim); ok {
		m.resolveRound(res)
	}
}

// Purchase buys an item during the buy phase from inside the participant's buy zone.
func (m *Match) Purchase(id, itemID string) error {
	m.lock()
	defer m.unlock()

	if m.state != domain.MatchActive {
		return ErrMatchNotActive
	}
	if m.round.phase != domain.PhaseBuy {
		return ErrWrongPhase
	}
	p, err := m.combatant(id)
	if err != nil {
		return err
	}
	item, ok := m.shop[itemID]
	if !ok {
		return ErrUnknownItem
	}
	if !m.layout.InBuyZone(p.Side, p.Position) {
		return ErrOutsideBuyZone
	}
	if !p.Spend(item.Cost) {
		return ErrInsufficientCredits
	}
	if item.Armor > 0 {
		p.Armor = max(p.Armor, item.Armor)
	} else {
		p.Loadout = append(p.Loadout, item.ID)
	}
	m.emit(EventLoadout, loadoutOf(p), p.ID)
	return nil
}

func (m *Match) liveActor(id string) (*domain.Participant, error) {
	if m.state != domain.MatchActive {
		return nil, ErrMatchNotActive
	}
	if !m.round.live() {
		return nil, ErrWrongPhase
	}
	return m.combatant(id)
}

// ActivateUltimate spends a full ultimate charge.
func (m *Match) ActivateUltimate(id string) error {
	m.lock()
	defer m.unlock()

	p, err := m.liveActor(id)
	if err != nil {
		return err
	}
	if p.UltActive {
		return ErrUltimateActive
	}
	if p.UltPoints < domain.MaxUltPoints {
		return ErrUltimateNotReady
	}
	p.UltPoints = 0
	p.UltActive = true
	m.emit(EventUltimateUsed, UltimateUsedPayload{ParticipantID: p.ID})
	return nil
}

// UseAbility triggers a named ability and starts its cooldown.
func (m *Match) UseAbility(id, ability string, cooldown time.Duration) error {
	m.lock()
	defer m.unlock()

	p, err := m.liveActor(id)
	if err != nil {
		return err
	}
	now := m.timers.Now()
	if p.CooldownRemaining(ability, now) > 0 {
		return ErrAbilityCooldown
	}
	p.StartCooldown(ability, now, cooldown)
	m.emit(EventAbilityUsed, AbilityUsedPayload{ParticipantID: p.ID, Ability: ability, Cooldown: cooldown})
	return nil
}
