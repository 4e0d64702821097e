package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/jonboulle/clockwork"

	"spikeline/internal/app"
	"spikeline/internal/config"
	"spikeline/internal/domain"
)

const (
	MatchLabelKey_OpenSlots = "open" // Key for the open participant slots in the match label
)

// joinRequest carries join metadata from MatchJoinAttempt to MatchJoin.
type joinRequest struct {
	side     domain.Side
	spectate bool
}

// MatchState holds the authoritative runtime state for the Nakama match handler.
type MatchState struct {
	MatchID   string                      `json:"match_id"`
	Tick      int64                       `json:"tick"`       // Current tick of the match loop
	EndedTick int64                       `json:"ended_tick"` // Tick at which the match reached MatchEnded
	Presences map[string]runtime.Presence `json:"-"`          // Map UserId -> Presence for targeted messaging
	Match     *app.Match                  `json:"-"`

	pending    map[string]joinRequest
	dispatcher runtime.MatchDispatcher
	logger     runtime.Logger
	labelDirty bool
}

// bind points event delivery at the dispatcher of the callback currently running.
func (ms *MatchState) bind(dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	ms.dispatcher = dispatcher
	ms.logger = logger
}

// Publish implements app.Sink by translating match events into Nakama messages.
func (ms *MatchState) Publish(ctx context.Context, ev app.Event) {
	switch ev.Kind {
	case app.EventParticipantJoined, app.EventParticipantLeft, app.EventMatchStarted,
		app.EventRoundStarted, app.EventMatchEnded:
		ms.labelDirty = true
	}
	if ms.dispatcher == nil {
		return
	}
	opCode, ok := eventOpCodes[ev.Kind]
	if !ok {
		ms.logger.Warn("Unknown event kind: %v", ev.Kind)
		return
	}
	bytes, err := encodePayload(ev.Payload)
	if err != nil {
		ms.logger.Error("Failed to marshal event %v: %v", ev.Kind, err)
		return
	}

	// Determine recipients (default to broadcast)
	var recipients []runtime.Presence
	if len(ev.Recipients) > 0 {
		for _, uid := range ev.Recipients {
			if p, ok := ms.Presences[uid]; ok {
				recipients = append(recipients, p)
			}
		}
		// Targeted events never fall back to a broadcast.
		if len(recipients) == 0 {
			return
		}
	}

	if err := ms.dispatcher.BroadcastMessage(opCode, bytes, recipients, nil, true); err != nil {
		ms.logger.Error("Failed to broadcast %v: %v", ev.Kind, err)
	}
}

// OpenSlots is the number of participant places left while the match is still waiting.
func (ms *MatchState) OpenSlots() int {
	if ms.Match.State() != domain.MatchWaiting {
		return 0
	}
	snap := ms.Match.Snapshot()
	taken := 0
	for _, t := range snap.Teams {
		taken += len(t.Members)
	}
	return max(0, 2*ms.Match.Mode().MaxPerTeam-taken)
}

func (ms *MatchState) label() map[string]interface{} {
	snap := ms.Match.Snapshot()
	return map[string]interface{}{
		MatchLabelKey_OpenSlots: ms.OpenSlots(),
		"state":                 string(snap.State),
		"mode":                  snap.Mode,
		"map":                   snap.Map,
		"round":                 snap.Round.Number,
	}
}

func (ms *MatchState) updateLabel() {
	ms.labelDirty = false
	if ms.dispatcher == nil {
		return
	}
	label, err := encodeLabel(ms.label())
	if err != nil {
		ms.logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := ms.dispatcher.MatchLabelUpdate(label); err != nil {
		ms.logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (ms *MatchState) flushLabel() {
	if ms.labelDirty {
		ms.updateLabel()
	}
}

// send delivers a payload privately to a connected user.
func (ms *MatchState) send(userID string, opCode int64, payload interface{}) {
	presence, ok := ms.Presences[userID]
	if !ok {
		ms.logger.Warn("Cannot send %d to %s: Presence not found", opCode, userID)
		return
	}
	bytes, err := encodePayload(payload)
	if err != nil {
		ms.logger.Error("Failed to marshal payload for opcode %d: %v", opCode, err)
		return
	}
	if err := ms.dispatcher.BroadcastMessage(opCode, bytes, []runtime.Presence{presence}, nil, true); err != nil {
		ms.logger.Error("Failed to send opcode %d to %s: %v", opCode, userID, err)
	}
}

type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sendError reports a rejected action back to the user who sent it.
func (ms *MatchState) sendError(userID string, code int, message string) {
	ms.send(userID, OpError, errorPayload{Code: code, Message: message})
}

type matchHandler struct {
	game    *config.GameConfig // nil reads the process-wide config
	clock   clockwork.Clock
	results app.Sink // receives round and match results for storage
	seed    int64
}

func paramString(params map[string]interface{}, key string) string {
	v, _ := params[key].(string)
	return strings.ToLower(strings.TrimSpace(v))
}

// MatchInit is called when the match is created. Params "mode" and "map" pick the rules and arena.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing match handler.")

	cfg := mh.game
	if cfg == nil {
		cfg = config.GetGameConfig()
	}
	modeName := paramString(params, "mode")
	if modeName == "" {
		modeName = "unrated"
	}
	mode, ok := cfg.ModeSet()[modeName]
	if !ok {
		logger.Error("MatchInit: Unknown mode %q", modeName)
		return nil, 0, ""
	}
	layout, ok := cfg.Layout(paramString(params, "map"))
	if !ok {
		layouts := cfg.Layouts()
		if len(layouts) == 0 {
			logger.Error("MatchInit: No arenas configured")
			return nil, 0, ""
		}
		layout = layouts[rand.Intn(len(layouts))]
	}

	matchID, _ := ctx.Value(runtime.RUNTIME_CTX_MATCH_ID).(string)
	state := &MatchState{
		MatchID:   matchID,
		Presences: make(map[string]runtime.Presence),
		pending:   make(map[string]joinRequest),
		logger:    logger,
	}

	seed := mh.seed
	if seed == 0 {
		seed = rand.Int63()
	}
	clock := mh.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m, err := app.NewMatch(app.Options{
		ID:          matchID,
		Layout:      layout,
		Mode:        mode,
		Shop:        cfg.ShopItems(),
		Clock:       clock,
		Rand:        rand.New(rand.NewSource(seed)),
		Logger:      logger,
		SettleDelay: cfg.SettleDelay(),
		Sink: app.MultiSink{
			state,
			mh.results,
		},
	})
	if err != nil {
		logger.Error("MatchInit: Failed to create match: %v", err)
		return nil, 0, ""
	}
	state.Match = m

	label, err := encodeLabel(state.label())
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}
	logger.Info("MatchInit: %s on %s", mode.Name, layout.Name)
	return state, tickRate, label
}

// MatchJoinAttempt validates a join. Metadata "spectate"="true" joins as a spectator and
// "side" requests attacker or defender.
func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	req := joinRequest{spectate: metadata["spectate"] == "true"}
	switch domain.Side(strings.ToLower(metadata["side"])) {
	case domain.SideAttacker:
		req.side = domain.SideAttacker
	case domain.SideDefender:
		req.side = domain.SideDefender
	}

	if req.spectate {
		if matchState.Match.State() == domain.MatchEnded {
			return state, false, "Match ended"
		}
	} else {
		if matchState.Match.State() != domain.MatchWaiting {
			return state, false, "Match in progress"
		}
		if matchState.OpenSlots() <= 0 {
			return state, false, "Match full"
		}
	}

	matchState.pending[presence.GetUserId()] = req
	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}
	matchState.bind(dispatcher, logger)

	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Presences[userID] = p
		req := matchState.pending[userID]
		delete(matchState.pending, userID)

		participant := domain.NewParticipant(userID, p.GetUsername())
		var err error
		if req.spectate {
			err = matchState.Match.AddSpectator(participant)
		} else {
			err = matchState.Match.AddParticipant(participant, req.side)
		}
		if err != nil {
			logger.Warn("MatchJoin: User %s could not join: %v", userID, err)
			matchState.sendError(userID, 409, err.Error())
			delete(matchState.Presences, userID)
			if kickErr := dispatcher.MatchKick([]runtime.Presence{p}); kickErr != nil {
				logger.Error("MatchJoin: Failed to kick %s: %v", userID, kickErr)
			}
			continue
		}
		matchState.send(userID, OpSnapshot, matchState.Match.Snapshot())
	}

	matchState.flushLabel()
	return matchState
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}
	matchState.bind(dispatcher, logger)

	for _, p := range presences {
		delete(matchState.Presences, p.GetUserId())
		if err := matchState.Match.RemoveParticipant(p.GetUserId()); err != nil && !errors.Is(err, app.ErrNotInMatch) {
			logger.Warn("MatchLeave: Failed to remove %s: %v", p.GetUserId(), err)
		}
	}

	if len(matchState.Presences) == 0 {
		switch matchState.Match.State() {
		case domain.MatchWaiting, domain.MatchEnded:
			logger.Info("MatchLeave: Terminating empty match.")
			return nil
		}
	}

	matchState.flushLabel()
	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}
	matchState.bind(dispatcher, logger)
	matchState.Tick = tick

	for _, msg := range messages {
		mh.handleMessage(matchState, msg)
	}

	matchState.Match.Advance()
	matchState.flushLabel()

	if matchState.Match.State() == domain.MatchEnded {
		if matchState.EndedTick == 0 {
			matchState.EndedTick = tick
		}
		if len(matchState.Presences) == 0 || tick-matchState.EndedTick >= endGraceTicks {
			logger.Info("MatchLoop: Match over, terminating.")
			return nil
		}
	}
	return matchState
}

// handleMessage applies one client action to the match. Rejected actions are reported to the sender only.
func (mh *matchHandler) handleMessage(state *MatchState, msg runtime.MatchData) {
	userID := msg.GetUserId()
	body, err := decodeMessage(msg.GetData())
	if err != nil {
		state.sendError(userID, 400, err.Error())
		return
	}

	m := state.Match
	switch msg.GetOpCode() {
	case OpMove:
		err = m.Move(userID, body.vec("position"))
	case OpDamage:
		err = m.Damage(userID, body.str("victim_id"), int(body.num("amount")), body.boolean("headshot"))
	case OpEliminate:
		err = m.Eliminate(userID, body.str("killer_id"))
	case OpPlant:
		err = m.Plant(userID, body.vec("location"))
	case OpDefuse:
		err = m.Defuse(userID)
	case OpPickUpSpike:
		err = m.PickUpSpike(userID)
	case OpPurchase:
		err = m.Purchase(userID, body.str("item_id"))
	case OpUltimate:
		err = m.ActivateUltimate(userID)
	case OpAbility:
		err = m.UseAbility(userID, body.str("ability"), body.millis("cooldown_ms"))
	default:
		state.logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		return
	}
	if err != nil {
		state.logger.Debug("MatchLoop: opcode %d from %s rejected: %v", msg.GetOpCode(), userID, err)
		state.sendError(userID, 400, err.Error())
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminated with %d seconds grace", graceSeconds)
	if matchState, ok := state.(*MatchState); ok {
		matchState.bind(dispatcher, logger)
		matchState.Match.EndMatch(domain.MatchEndAdmin)
	}
	return state
}

// signal is the control message accepted by MatchSignal.
type signal struct {
	Op     string `json:"op"`
	UserID string `json:"user_id,omitempty"`
}

type signalReply struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// MatchSignal answers control requests from RPCs: "state", "start", "end" and "whois".
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, ""
	}
	matchState.bind(dispatcher, logger)

	var sig signal
	reply := signalReply{OK: true}
	if err := json.Unmarshal([]byte(data), &sig); err != nil {
		reply = signalReply{Error: "invalid signal"}
	} else {
		switch sig.Op {
		case "state":
			reply.Data = matchState.Match.Snapshot()
		case "start":
			if err := matchState.Match.StartMatch(); err != nil {
				reply = signalReply{Error: err.Error()}
			}
		case "end":
			reply.Data = map[string]bool{"ended": matchState.Match.EndMatch(domain.MatchEndAdmin)}
		case "whois":
			p, found := matchState.Match.ParticipantSnapshot(sig.UserID)
			if !found {
				reply = signalReply{Error: app.ErrNotInMatch.Error()}
			} else {
				reply.Data = p
			}
		default:
			reply = signalReply{Error: "unknown signal " + sig.Op}
		}
	}
	matchState.flushLabel()

	out, err := json.Marshal(reply)
	if err != nil {
		logger.Error("MatchSignal: Failed to marshal reply: %v", err)
		return matchState, ""
	}
	return matchState, string(out)
}
