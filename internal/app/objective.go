package app

import (
	"errors"
	"time"

	"spikeline/internal/domain"
	"spikeline/internal/timer"
)

var (
	ErrObjectiveDisabled = errors.New("mode has no objective")
	ErrObjectiveState    = errors.New("spike is not in the required state")
	ErrNotCarrier        = errors.New("participant is not carrying the spike")
	ErrWrongSide         = errors.New("participant is on the wrong side")
	ErrOutsideSite       = errors.New("location is outside every plant site")
	ErrOutOfRange        = errors.New("participant is out of interaction range")
)

type spike struct {
	state     domain.ObjectiveState
	carrier   *domain.Participant
	position  domain.Vec3
	site      string
	planterID string
	plantedAt time.Time
	fuse      *timer.Timer
}

// spawnSpike hands the spike to a random attacker.
func (m *Match) spawnSpike() {
	attackers := m.teamOn(domain.SideAttacker).members
	if len(attackers) == 0 {
		return
	}
	carrier := attackers[m.rng.Intn(len(attackers))]
	m.spike.state = domain.ObjectiveCarried
	m.spike.carrier = carrier
	m.emit(EventSpikeSpawned, SpikeSpawnedPayload{Round: m.round.number, CarrierID: carrier.ID})
}

func (m *Match) dropSpike(at domain.Vec3) {
	if m.spike.state != domain.ObjectiveCarried {
		return
	}
	m.spike.state = domain.ObjectiveDropped
	m.spike.carrier = nil
	m.spike.position = at
	m.emit(EventSpikeDropped, SpikeDroppedPayload{Position: at})
}

// objectiveActor validates the shared preconditions of every spike action.
func (m *Match) objectiveActor(id string) (*domain.Participant, error) {
	if m.state != domain.MatchActive {
		return nil, ErrMatchNotActive
	}
	if !m.mode.Rules.ObjectiveEnabled() {
		return nil, ErrObjectiveDisabled
	}
	p, _ := m.find(id)
	if p == nil {
		return nil, ErrNotInMatch
	}
	if !p.Alive {
		return nil, ErrNotAlive
	}
	return p, nil
}

// PickUpSpike lets a living attacker within range take a dropped spike.
func (m *Match) PickUpSpike(id string) error {
	m.lock()
	defer m.unlock()

	p, err := m.objectiveActor(id)
	if err != nil {
		return err
	}
	if !m.round.live() {
		return ErrWrongPhase
	}
	if m.spike.state != domain.ObjectiveDropped {
		return ErrObjectiveState
	}
	if p.Side != domain.SideAttacker {
		return ErrWrongSide
	}
	if p.Position.Distance(m.spike.position) > InteractionRange {
		return ErrOutOfRange
	}
	m.spike.state = domain.ObjectiveCarried
	m.spike.carrier = p
	m.emit(EventSpikePickedUp, SpikePickedUpPayload{CarrierID: p.ID})
	return nil
}

// Plant arms the spike at location. Only the carrier, on the attacking side and inside a site,
// may plant during combat. Planting cancels the round timer and starts the fuse.
func (m *Match) Plant(id string, location domain.Vec3) error {
	m.lock()
	defer m.unlock()

	p, err := m.objectiveActor(id)
	if err != nil {
		return err
	}
	if m.round.phase != domain.PhaseCombat {
		return ErrWrongPhase
	}
	if m.spike.state != domain.ObjectiveCarried {
		return ErrObjectiveState
	}
	if m.spike.carrier != p {
		return ErrNotCarrier
	}
	if p.Side != domain.SideAttacker {
		return ErrWrongSide
	}
	site, ok := m.layout.SiteAt(location)
	if !ok {
		return ErrOutsideSite
	}

	now := m.timers.Now()
	n := m.round.number
	m.spike = spike{
		state:     domain.ObjectivePlanted,
		position:  location,
		site:      site.Name,
		planterID: p.ID,
		plantedAt: now,
	}
	m.round.roundTimer.Stop()
	m.spike.fuse = m.timers.After("spike", SpikeFuse, func() { m.onDetonate(n) })
	rewardObjective(p)

	m.logger.Info("spike planted on %s by %s", site.Name, p.ID)
	m.emit(EventSpikePlanted, SpikePlantedPayload{
		PlanterID:   p.ID,
		Site:        site.Name,
		Location:    location,
		DetonatesAt: now.Add(SpikeFuse),
	})
	m.emit(EventLoadout, loadoutOf(p), p.ID)
	return nil
}

// Defuse disarms a planted spike. The defender must be within InteractionRange of it.
func (m *Match) Defuse(id string) error {
	m.lock()
	defer m.unlock()

	p, err := m.objectiveActor(id)
	if err != nil {
		return err
	}
	if m.round.phase != domain.PhaseCombat {
		return ErrWrongPhase
	}
	if m.spike.state != domain.ObjectivePlanted {
		return ErrObjectiveState
	}
	if p.Side != domain.SideDefender {
		return ErrWrongSide
	}
	if p.Position.Distance(m.spike.position) > InteractionRange {
		return ErrOutOfRange
	}

	m.spike.fuse.Stop()
	m.spike.state = domain.ObjectiveDefused
	rewardObjective(p)

	m.logger.Info("spike defused by %s", p.ID)
	m.emit(EventSpikeDefused, SpikeDefusedPayload{DefuserID: p.ID})
	m.emit(EventLoadout, loadoutOf(p), p.ID)
	m.resolveRound(domain.Resolution{Winner: domain.SideDefender, Reason: domain.RoundSpikeDefused})
	return nil
}

func (m *Match) onDetonate(n int) {
	if m.state != domain.MatchActive || m.round.number != n || m.spike.state != domain.ObjectivePlanted {
		return
	}
	m.spike.state = domain.ObjectiveExploded
	m.logger.Info("spike exploded on %s", m.spike.site)
	m.emit(EventSpikeExploded, SpikeExplodedPayload{Location: m.spike.position})
	m.resolveRound(domain.Resolution{Winner: domain.SideAttacker, Reason: domain.RoundSpikeExploded})
}

func rewardObjective(p *domain.Participant) {
	p.AddCredits(domain.ObjectiveReward)
	p.AddUltPoints(1)
	p.Round.PlantsDefuses++
}
