package domain

// Side is the role a team plays in the current half.
type Side string

const (
	// SideNone marks a participant without an assigned side.
	SideNone Side = ""
	// SideAttacker carries and plants the spike.
	SideAttacker Side = "attacker"
	// SideDefender prevents or defuses the plant.
	SideDefender Side = "defender"
)

// Opposite returns the opposing side. SideNone has no opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideAttacker:
		return SideDefender
	case SideDefender:
		return SideAttacker
	default:
		return SideNone
	}
}

// Sides lists the two playing sides in a stable order.
var Sides = [2]Side{SideAttacker, SideDefender}

// Team names a roster. Score and loss streak belong to the team and follow it across a side swap.
type Team string

const (
	TeamNone  Team = ""
	TeamAlpha Team = "alpha"
	TeamBravo Team = "bravo"
)

// MatchState represents the lifecycle stage of a match.
type MatchState string

const (
	// MatchWaiting accepts new participants.
	MatchWaiting MatchState = "waiting"
	// MatchStarting is entered once both sides meet the mode minimum.
	MatchStarting MatchState = "starting"
	// MatchActive means rounds are being played.
	MatchActive MatchState = "active"
	// MatchEnded is terminal.
	MatchEnded MatchState = "ended"
)

// RoundPhase is the stage of a single round.
type RoundPhase string

const (
	PhaseWaiting RoundPhase = "waiting"
	PhaseBuy     RoundPhase = "buy"
	PhaseCombat  RoundPhase = "combat"
	PhaseEnded   RoundPhase = "ended"
)

// RoundEndReason explains how a round was resolved.
type RoundEndReason string

const (
	RoundElimination   RoundEndReason = "elimination"
	RoundTimeExpired   RoundEndReason = "time_expired"
	RoundSpikeExploded RoundEndReason = "spike_exploded"
	RoundSpikeDefused  RoundEndReason = "spike_defused"
	RoundHitLimit      RoundEndReason = "hit_limit"
)

// MatchEndReason explains why a match finished.
type MatchEndReason string

const (
	MatchEndScoreLimit       MatchEndReason = "score_limit"
	MatchEndMaxRounds        MatchEndReason = "max_rounds"
	MatchEndNotEnoughPlayers MatchEndReason = "not_enough_players"
	MatchEndAdmin            MatchEndReason = "admin_ended"
)

// ObjectiveState is the lifecycle of the spike within a round.
type ObjectiveState string

const (
	ObjectiveUnspawned ObjectiveState = "unspawned"
	ObjectiveCarried   ObjectiveState = "carried"
	// ObjectiveDropped means the carrier died and the spike lies on the ground.
	ObjectiveDropped  ObjectiveState = "dropped"
	ObjectivePlanted  ObjectiveState = "planted"
	ObjectiveDefused  ObjectiveState = "defused"
	ObjectiveExploded ObjectiveState = "exploded"
)
