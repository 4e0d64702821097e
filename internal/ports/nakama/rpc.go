package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"

	"spikeline/internal/app"
	"spikeline/internal/config"
	"spikeline/internal/domain"
)

// gRPC status codes used by runtime.NewError.
const (
	codeInvalidArgument    = 3
	codeNotFound           = 5
	codePermissionDenied   = 7
	codeFailedPrecondition = 9
	codeInternal           = 13
	codeUnauthenticated    = 16
)

// matchAPI is the slice of runtime.NakamaModule the match RPCs need.
type matchAPI interface {
	MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error)
	MatchList(ctx context.Context, limit int, authoritative bool, label string, minSize, maxSize *int, query string) ([]*api.Match, error)
	MatchSignal(ctx context.Context, id string, data string) (string, error)
}

// voiceService is configured by InitModule when voice credentials are present.
var voiceService *app.VoiceService

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer) error {
	rpcs := []struct {
		id string
		fn func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error)
	}{
		{RpcCreateMatch, RpcCreateMatchHandler},
		{RpcEndMatch, RpcEndMatchHandler},
		{RpcMatchState, RpcMatchStateHandler},
		{RpcQuickMatch, RpcQuickMatchHandler},
		{RpcVoiceToken, RpcVoiceTokenHandler},
	}
	for _, r := range rpcs {
		if err := initializer.RegisterRpc(r.id, r.fn); err != nil {
			return fmt.Errorf("register rpc %s: %w", r.id, err)
		}
	}
	return nil
}

// MatchResponse is returned by the match-creating RPCs.
type MatchResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
}

type matchRequest struct {
	MatchID string `json:"match_id"`
	Mode    string `json:"mode"`
	Map     string `json:"map"`
}

func decodeRequest(payload string) (matchRequest, error) {
	var req matchRequest
	if strings.TrimSpace(payload) == "" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return req, runtime.NewError("Invalid payload", codeInvalidArgument)
	}
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	req.Map = strings.TrimSpace(req.Map)
	return req, nil
}

func marshalResponse(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", runtime.NewError("Internal error", codeInternal)
	}
	return string(b), nil
}

// RpcCreateMatchHandler creates a match. Payload: {"mode": "...", "map": "..."}; map is optional.
func RpcCreateMatchHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return createMatch(ctx, logger, nk, config.GetGameConfig(), payload)
}

func createMatch(ctx context.Context, logger runtime.Logger, nk matchAPI, cfg *config.GameConfig, payload string) (string, error) {
	req, err := decodeRequest(payload)
	if err != nil {
		return "", err
	}
	if req.Mode == "" {
		req.Mode = "unrated"
	}
	if _, ok := cfg.ModeSet()[req.Mode]; !ok {
		return "", runtime.NewError("Unknown mode", codeInvalidArgument)
	}
	if req.Map != "" {
		if _, ok := cfg.Layout(req.Map); !ok {
			return "", runtime.NewError("Unknown map", codeInvalidArgument)
		}
	}

	matchID, err := nk.MatchCreate(ctx, MatchNameSpike, map[string]interface{}{"mode": req.Mode, "map": req.Map})
	if err != nil {
		logger.Error("MatchCreate error: %v", err)
		return "", runtime.NewError("Internal error", codeInternal)
	}
	logger.Info("Created %s match %s", req.Mode, matchID)
	return marshalResponse(MatchResponse{MatchID: matchID, IsNew: true})
}

// RpcQuickMatchHandler joins the first waiting match of a mode with open slots, creating one if none exist.
func RpcQuickMatchHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return quickMatch(ctx, logger, nk, config.GetGameConfig(), payload)
}

func quickMatch(ctx context.Context, logger runtime.Logger, nk matchAPI, cfg *config.GameConfig, payload string) (string, error) {
	req, err := decodeRequest(payload)
	if err != nil {
		return "", err
	}
	if req.Mode == "" {
		req.Mode = "unrated"
	}
	if _, ok := cfg.ModeSet()[req.Mode]; !ok {
		return "", runtime.NewError("Unknown mode", codeInvalidArgument)
	}

	query := fmt.Sprintf("+label.%s:>=1 +label.state:%s +label.mode:%s", MatchLabelKey_OpenSlots, domain.MatchWaiting, req.Mode)
	matches, err := nk.MatchList(ctx, 10, true, "", nil, nil, query)
	if err != nil {
		logger.Error("MatchList error: %v", err)
		return "", runtime.NewError("Internal error", codeInternal)
	}
	if len(matches) > 0 {
		return marshalResponse(MatchResponse{MatchID: matches[0].MatchId, IsNew: false})
	}

	req.Map = ""
	raw, _ := json.Marshal(req)
	return createMatch(ctx, logger, nk, cfg, string(raw))
}

// signalResult mirrors signalReply with the payload left undecoded.
type signalResult struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

func sendSignal(ctx context.Context, logger runtime.Logger, nk matchAPI, matchID string, sig signal) (json.RawMessage, error) {
	if matchID == "" {
		return nil, runtime.NewError("match_id is required", codeInvalidArgument)
	}
	data, _ := json.Marshal(sig)
	out, err := nk.MatchSignal(ctx, matchID, string(data))
	if err != nil {
		logger.Warn("MatchSignal %s to %s failed: %v", sig.Op, matchID, err)
		return nil, runtime.NewError("Match not found", codeNotFound)
	}
	var res signalResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return nil, runtime.NewError("Internal error", codeInternal)
	}
	if !res.OK {
		return nil, runtime.NewError(res.Error, codeFailedPrecondition)
	}
	return res.Data, nil
}

// RpcMatchStateHandler returns a match snapshot. Payload: {"match_id": "..."}.
func RpcMatchStateHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return matchState(ctx, logger, nk, payload)
}

func matchState(ctx context.Context, logger runtime.Logger, nk matchAPI, payload string) (string, error) {
	req, err := decodeRequest(payload)
	if err != nil {
		return "", err
	}
	data, err := sendSignal(ctx, logger, nk, req.MatchID, signal{Op: "state"})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RpcEndMatchHandler force-ends a match. Only server-to-server calls (no session user) may use it.
func RpcEndMatchHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return endMatch(ctx, logger, nk, payload)
}

func endMatch(ctx context.Context, logger runtime.Logger, nk matchAPI, payload string) (string, error) {
	if userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string); userID != "" {
		return "", runtime.NewError("Admin only", codePermissionDenied)
	}
	req, err := decodeRequest(payload)
	if err != nil {
		return "", err
	}
	data, err := sendSignal(ctx, logger, nk, req.MatchID, signal{Op: "end"})
	if err != nil {
		return "", err
	}
	logger.Info("Admin ended match %s", req.MatchID)
	return string(data), nil
}

type voiceRequest struct {
	Action  string `json:"action"`
	MatchID string `json:"match_id"`
}

// VoiceTokenResponse carries a signed voice token and, for joins, the team channel it grants.
type VoiceTokenResponse struct {
	Token   string `json:"token"`
	Channel string `json:"channel,omitempty"`
}

// RpcVoiceTokenHandler signs a voice token for the calling user.
// Payload: {"action": "login" | "join", "match_id": "..."}; joins are scoped to the caller's team channel.
func RpcVoiceTokenHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return voiceToken(ctx, logger, nk, payload)
}

func voiceToken(ctx context.Context, logger runtime.Logger, nk matchAPI, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("Session required", codeUnauthenticated)
	}
	if voiceService == nil {
		return "", runtime.NewError("Voice chat is not configured", codeFailedPrecondition)
	}

	var req voiceRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("Invalid payload", codeInvalidArgument)
	}

	var resp VoiceTokenResponse
	var err error
	switch req.Action {
	case app.VoiceActionLogin:
		resp.Token, err = voiceService.GenerateToken(userID, app.VoiceActionLogin, "")
	case app.VoiceActionJoin:
		data, sigErr := sendSignal(ctx, logger, nk, req.MatchID, signal{Op: "whois", UserID: userID})
		if sigErr != nil {
			return "", sigErr
		}
		var who struct {
			Side domain.Side `json:"side"`
		}
		if jsonErr := json.Unmarshal(data, &who); jsonErr != nil || who.Side == domain.SideNone {
			return "", runtime.NewError("Not a participant", codePermissionDenied)
		}
		resp.Channel = app.TeamChannel(req.MatchID, who.Side)
		resp.Token, err = voiceService.GenerateToken(userID, app.VoiceActionJoin, resp.Channel)
	default:
		return "", runtime.NewError("Unsupported action", codeInvalidArgument)
	}
	if err != nil {
		logger.Error("Failed to generate voice token: %v", err)
		return "", runtime.NewError("Internal error", codeInternal)
	}
	return marshalResponse(resp)
}
