package ports

import (
	"context"

	"spikeline/internal/domain"
)

// ResultStore persists finished rounds and matches.
type ResultStore interface {
	// SaveRound records a single round result as soon as the round is resolved.
	SaveRound(ctx context.Context, result domain.RoundResult) error

	// SaveMatch records the final summary and folds player stats into career totals.
	SaveMatch(ctx context.Context, summary domain.MatchSummary) error
}

// Archive stores a full match summary as an immutable document.
type Archive interface {
	// Archive uploads the summary and returns the object key it was stored under.
	Archive(ctx context.Context, summary domain.MatchSummary) (string, error)
}
