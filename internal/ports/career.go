package ports

import "context"

// CareerPort creates the persistent career record for a player.
type CareerPort interface {
	// InitCareer creates an empty career for userID under callsign at most once.
	// Returns created=false when a career already exists.
	InitCareer(ctx context.Context, userID, callsign string) (bool, error)
}
