package nakama

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"

	"spikeline/internal/ports"
)

type accountAPI interface {
	AccountUpdateId(ctx context.Context, userID, username string, metadata map[string]interface{}, displayName, timezone, location, langTag, avatarUrl string) error
}

// ProfileAdapter writes callsigns to the Nakama account. The username is left alone so device
// re-links keep working; the callsign goes to the display name and account metadata.
type ProfileAdapter struct {
	nk accountAPI
}

func NewProfileAdapter(nk runtime.NakamaModule) *ProfileAdapter {
	return &ProfileAdapter{nk: nk}
}

func (a *ProfileAdapter) SetCallsign(ctx context.Context, userID, callsign string) error {
	return a.nk.AccountUpdateId(ctx, userID, "", map[string]interface{}{"callsign": callsign}, callsign, "", "", "", "")
}

var _ ports.ProfilePort = (*ProfileAdapter)(nil)
