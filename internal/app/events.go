package app

import (
	"time"

	"spikeline/internal/domain"
)

// EventKind identifies emitted match events for presentation and persistence.
type EventKind string

const (
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventSpectatorJoined   EventKind = "spectator_joined"
	EventMatchStarting     EventKind = "match_starting"
	EventMatchStarted      EventKind = "match_started"
	EventRoundStarted      EventKind = "round_started"
	EventCombatStarted     EventKind = "combat_started"
	EventClockSync         EventKind = "clock_sync"
	EventRoundEnded        EventKind = "round_ended"
	EventSidesSwapped      EventKind = "sides_swapped"
	EventMatchEnded        EventKind = "match_ended"

	EventSpikeSpawned  EventKind = "spike_spawned"
	EventSpikeDropped  EventKind = "spike_dropped"
	EventSpikePickedUp EventKind = "spike_picked_up"
	EventSpikePlanted  EventKind = "spike_planted"
	EventSpikeDefused  EventKind = "spike_defused"
	EventSpikeExploded EventKind = "spike_exploded"

	EventTeleport     EventKind = "teleport"
	EventLoadout      EventKind = "loadout"
	EventDamage       EventKind = "damage"
	EventKill         EventKind = "kill"
	EventUltimateUsed EventKind = "ultimate_used"
	EventAbilityUsed  EventKind = "ability_used"
)

// Event is a match event with optional targeted recipients.
type Event struct {
	MatchID    string
	Kind       EventKind
	Payload    any
	Recipients []string // participant IDs; empty means broadcast
}

type ParticipantJoinedPayload struct {
	ParticipantID string      `json:"participant_id"`
	Name          string      `json:"name"`
	Side          domain.Side `json:"side"`
	Team          domain.Team `json:"team"`
}

type ParticipantLeftPayload struct {
	ParticipantID string `json:"participant_id"`
}

type SpectatorJoinedPayload struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
}

type MatchStartingPayload struct {
	Attackers int `json:"attackers"`
	Defenders int `json:"defenders"`
}

type MatchStartedPayload struct {
	Map  string `json:"map"`
	Mode string `json:"mode"`
}

type RoundStartedPayload struct {
	Round       int                 `json:"round"`
	BuyDeadline time.Time           `json:"buy_deadline"`
	Scores      map[domain.Side]int `json:"scores"`
}

type CombatStartedPayload struct {
	Round    int       `json:"round"`
	Deadline time.Time `json:"deadline"`
}

type ClockSyncPayload struct {
	Round     int               `json:"round"`
	Phase     domain.RoundPhase `json:"phase"`
	Remaining time.Duration     `json:"remaining"`
}

type RoundEndedPayload struct {
	Result domain.RoundResult `json:"result"`
}

type SidesSwappedPayload struct {
	AfterRound int                         `json:"after_round"`
	Sides      map[domain.Team]domain.Side `json:"sides"`
}

type MatchEndedPayload struct {
	Summary domain.MatchSummary `json:"summary"`
}

type SpikeSpawnedPayload struct {
	Round     int    `json:"round"`
	CarrierID string `json:"carrier_id"`
}

type SpikeDroppedPayload struct {
	Position domain.Vec3 `json:"position"`
}

type SpikePickedUpPayload struct {
	CarrierID string `json:"carrier_id"`
}

type SpikePlantedPayload struct {
	PlanterID   string      `json:"planter_id"`
	Site        string      `json:"site"`
	Location    domain.Vec3 `json:"location"`
	DetonatesAt time.Time   `json:"detonates_at"`
}

type SpikeDefusedPayload struct {
	DefuserID string `json:"defuser_id"`
}

type SpikeExplodedPayload struct {
	Location domain.Vec3 `json:"location"`
}

type TeleportPayload struct {
	ParticipantID string      `json:"participant_id"`
	Position      domain.Vec3 `json:"position"`
}

type LoadoutPayload struct {
	ParticipantID string   `json:"participant_id"`
	Items         []string `json:"items"`
	Armor         int      `json:"armor"`
	Credits       int      `json:"credits"`
	UltPoints     int      `json:"ult_points"`
}

type DamagePayload struct {
	AttackerID string `json:"attacker_id"`
	VictimID   string `json:"victim_id"`
	Amount     int    `json:"amount"`
	Health     int    `json:"health"`
	Armor      int    `json:"armor"`
	Headshot   bool   `json:"headshot"`
}

type KillPayload struct {
	KillerID   string   `json:"killer_id,omitempty"`
	VictimID   string   `json:"victim_id"`
	Headshot   bool     `json:"headshot"`
	FirstBlood bool     `json:"first_blood"`
	Assists    []string `json:"assists,omitempty"`
}

type UltimateUsedPayload struct {
	ParticipantID string `json:"participant_id"`
}

type AbilityUsedPayload struct {
	ParticipantID string        `json:"participant_id"`
	Ability       string        `json:"ability"`
	Cooldown      time.Duration `json:"cooldown"`
}
