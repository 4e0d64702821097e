package domain

// Resolution is a decided round outcome.
type Resolution struct {
	Winner Side
	Reason RoundEndReason
}

// RoundView is the read-only round state consulted by rules.
type RoundView interface {
	// Alive counts living participants on a side.
	Alive(side Side) int
	// RoundDamage sums damage dealt by a side this round.
	RoundDamage(side Side) int
	// RoundHits sums landed hits by a side this round.
	RoundHits(side Side) int
}

// RoundRules decides how damage, deaths and timeouts resolve a round for a mode.
type RoundRules interface {
	Name() string
	ObjectiveEnabled() bool
	// OnDamage returns the health damage to apply and, when the hit decides the round, its resolution.
	// The hit has already been counted in the view.
	OnDamage(view RoundView, attacker, victim *Participant, amount int) (int, Resolution, bool)
	// OnDeath runs after victim has been marked dead.
	OnDeath(view RoundView, victim *Participant) (Resolution, bool)
	// OnTimeout resolves a round whose combat timer expired.
	OnTimeout(view RoundView) Resolution
}

// CheckElimination resolves the round when exactly one side has survivors.
func CheckElimination(view RoundView) (Resolution, bool) {
	attackers, defenders := view.Alive(SideAttacker), view.Alive(SideDefender)
	switch {
	case attackers == 0 && defenders > 0:
		return Resolution{Winner: SideDefender, Reason: RoundElimination}, true
	case defenders == 0 && attackers > 0:
		return Resolution{Winner: SideAttacker, Reason: RoundElimination}, true
	}
	return Resolution{}, false
}

// ArmoredDamage splits incoming damage between armor and health. Armor absorbs up to half.
func ArmoredDamage(amount, armor int) (health, armorLoss int) {
	armorLoss = min(amount/2, armor)
	return amount - armorLoss, armorLoss
}

// leader returns the side with the higher score, defenders on a tie.
func leader(attacker, defender int) Side {
	if attacker > defender {
		return SideAttacker
	}
	return SideDefender
}

// SpikeRules is the competitive ruleset: plant or eliminate, defenders hold on timeout.
type SpikeRules struct{}

func (SpikeRules) Name() string           { return "spike" }
func (SpikeRules) ObjectiveEnabled() bool { return true }

func (SpikeRules) OnDamage(_ RoundView, _, _ *Participant, amount int) (int, Resolution, bool) {
	return amount, Resolution{}, false
}

func (SpikeRules) OnDeath(view RoundView, _ *Participant) (Resolution, bool) {
	return CheckElimination(view)
}

func (SpikeRules) OnTimeout(RoundView) Resolution {
	return Resolution{Winner: SideDefender, Reason: RoundTimeExpired}
}

// DuelRules is a no-objective elimination round; on timeout the side that dealt more damage wins.
type DuelRules struct{}

func (DuelRules) Name() string           { return "duel" }
func (DuelRules) ObjectiveEnabled() bool { return false }

func (DuelRules) OnDamage(_ RoundView, _, _ *Participant, amount int) (int, Resolution, bool) {
	return amount, Resolution{}, false
}

func (DuelRules) OnDeath(view RoundView, _ *Participant) (Resolution, bool) {
	return CheckElimination(view)
}

func (DuelRules) OnTimeout(view RoundView) Resolution {
	return Resolution{
		Winner: leader(view.RoundDamage(SideAttacker), view.RoundDamage(SideDefender)),
		Reason: RoundTimeExpired,
	}
}

// DefaultHitLimit is the number of landed hits that wins a boxing round.
const DefaultHitLimit = 100

// BoxingRules deals no health damage; the first side to land HitLimit hits wins.
type BoxingRules struct {
	HitLimit int
}

func (BoxingRules) Name() string           { return "boxing" }
func (BoxingRules) ObjectiveEnabled() bool { return false }

func (r BoxingRules) OnDamage(view RoundView, attacker, _ *Participant, _ int) (int, Resolution, bool) {
	limit := r.HitLimit
	if limit <= 0 {
		limit = DefaultHitLimit
	}
	if view.RoundHits(attacker.Side) >= limit {
		return 0, Resolution{Winner: attacker.Side, Reason: RoundHitLimit}, true
	}
	return 0, Resolution{}, false
}

func (BoxingRules) OnDeath(view RoundView, _ *Participant) (Resolution, bool) {
	return CheckElimination(view)
}

func (BoxingRules) OnTimeout(view RoundView) Resolution {
	return Resolution{
		Winner: leader(view.RoundHits(SideAttacker), view.RoundHits(SideDefender)),
		Reason: RoundTimeExpired,
	}
}

// SumoRules deals no health damage. Participants are eliminated by ring-out only.
type SumoRules struct{}

func (SumoRules) Name() string           { return "sumo" }
func (SumoRules) ObjectiveEnabled() bool { return false }

func (SumoRules) OnDamage(_ RoundView, _, _ *Participant, _ int) (int, Resolution, bool) {
	return 0, Resolution{}, false
}

func (SumoRules) OnDeath(view RoundView, _ *Participant) (Resolution, bool) {
	return CheckElimination(view)
}

func (SumoRules) OnTimeout(view RoundView) Resolution {
	return Resolution{
		Winner: leader(view.RoundHits(SideAttacker), view.RoundHits(SideDefender)),
		Reason: RoundTimeExpired,
	}
}
