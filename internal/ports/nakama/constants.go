package nakama

import "spikeline/internal/app"

const (
	// MatchNameSpike is the authoritative match handler name registered with Nakama.
	MatchNameSpike = "spike_match"

	RpcCreateMatch = "create_match"
	RpcEndMatch    = "end_match"
	RpcMatchState  = "match_state"
	RpcQuickMatch  = "quick_match"
	RpcVoiceToken  = "voice_token"

	// tickRate is how many times per second MatchLoop runs and timers are polled.
	tickRate = 10
	// endGraceTicks keeps an ended match alive long enough for clients to read the summary.
	endGraceTicks = 30 * tickRate
)

// Op codes for client messages.
const (
	OpMove        int64 = 1
	OpDamage      int64 = 2
	OpEliminate   int64 = 3
	OpPlant       int64 = 4
	OpDefuse      int64 = 5
	OpPickUpSpike int64 = 6
	OpPurchase    int64 = 7
	OpUltimate    int64 = 8
	OpAbility     int64 = 9
)

// Op codes for server events.
const (
	OpParticipantJoined int64 = 101
	OpParticipantLeft   int64 = 102
	OpSpectatorJoined   int64 = 103
	OpMatchStarting     int64 = 104
	OpMatchStarted      int64 = 105
	OpRoundStarted      int64 = 106
	OpCombatStarted     int64 = 107
	OpClockSync         int64 = 108
	OpRoundEnded        int64 = 109
	OpSidesSwapped      int64 = 110
	OpMatchEnded        int64 = 111
	OpSpikeSpawned      int64 = 112
	OpSpikeDropped      int64 = 113
	OpSpikePickedUp     int64 = 114
	OpSpikePlanted      int64 = 115
	OpSpikeDefused      int64 = 116
	OpSpikeExploded     int64 = 117
	OpTeleport          int64 = 118 // send privately
	OpLoadout           int64 = 119 // send privately
	OpDamageDealt       int64 = 120
	OpKill              int64 = 121
	OpUltimateUsed      int64 = 122
	OpAbilityUsed       int64 = 123

	OpSnapshot int64 = 150 // send privately
	OpError    int64 = 199 // send privately
)

var eventOpCodes = map[app.EventKind]int64{
	app.EventParticipantJoined: OpParticipantJoined,
	app.EventParticipantLeft:   OpParticipantLeft,
	app.EventSpectatorJoined:   OpSpectatorJoined,
	app.EventMatchStarting:     OpMatchStarting,
	app.EventMatchStarted:      OpMatchStarted,
	app.EventRoundStarted:      OpRoundStarted,
	app.EventCombatStarted:     OpCombatStarted,
	app.EventClockSync:         OpClockSync,
	app.EventRoundEnded:        OpRoundEnded,
	app.EventSidesSwapped:      OpSidesSwapped,
	app.EventMatchEnded:        OpMatchEnded,
	app.EventSpikeSpawned:      OpSpikeSpawned,
	app.EventSpikeDropped:      OpSpikeDropped,
	app.EventSpikePickedUp:     OpSpikePickedUp,
	app.EventSpikePlanted:      OpSpikePlanted,
	app.EventSpikeDefused:      OpSpikeDefused,
	app.EventSpikeExploded:     OpSpikeExploded,
	app.EventTeleport:          OpTeleport,
	app.EventLoadout:           OpLoadout,
	app.EventDamage:            OpDamageDealt,
	app.EventKill:              OpKill,
	app.EventUltimateUsed:      OpUltimateUsed,
	app.EventAbilityUsed:       OpAbilityUsed,
}
