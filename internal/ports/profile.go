package ports

import "context"

// ProfilePort publishes a player's callsign on their account.
type ProfilePort interface {
	SetCallsign(ctx context.Context, userID, callsign string) error
}
