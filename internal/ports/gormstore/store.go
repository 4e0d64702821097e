// Package gormstore persists match results and careers in Postgres through gorm.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"spikeline/internal/domain"
	"spikeline/internal/ports"
)

// Store implements ports.ResultStore and ports.CareerPort on a gorm database.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the result tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&MatchRecord{}, &RoundRecord{}, &PlayerCareer{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func roundRecord(r domain.RoundResult) RoundRecord {
	return RoundRecord{
		MatchID:        r.MatchID,
		Number:         r.Number,
		Winner:         string(r.Winner),
		WinnerTeam:     string(r.WinnerTeam),
		Reason:         string(r.Reason),
		AttackerKills:  r.Attackers.Kills,
		DefenderKills:  r.Defenders.Kills,
		AttackerDamage: r.Attackers.Damage,
		DefenderDamage: r.Defenders.Damage,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
	}
}

// SaveRound records a round. Saving the same round twice is a no-op.
func (s *Store) SaveRound(ctx context.Context, result domain.RoundResult) error {
	rec := roundRecord(result)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to save round %d of %s: %w", result.Number, result.MatchID, err)
	}
	return nil
}

func matchRecord(summary domain.MatchSummary) (MatchRecord, error) {
	doc, err := json.Marshal(summary)
	if err != nil {
		return MatchRecord{}, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return MatchRecord{
		ID:         summary.MatchID,
		Map:        summary.Map,
		Mode:       summary.Mode,
		Reason:     string(summary.Reason),
		WinnerTeam: string(summary.WinnerTeam),
		Draw:       summary.Draw,
		ScoreAlpha: summary.Scores[domain.TeamAlpha],
		ScoreBravo: summary.Scores[domain.TeamBravo],
		Rounds:     len(summary.Rounds),
		Summary:    string(doc),
		StartedAt:  summary.StartedAt,
		EndedAt:    summary.EndedAt,
	}, nil
}

// careerDelta is the row a single match contributes to a career.
func careerDelta(summary domain.MatchSummary, line domain.PlayerLine) PlayerCareer {
	c := PlayerCareer{
		UserID:        line.ID,
		Callsign:      line.Name,
		Matches:       1,
		Kills:         line.Stats.Kills,
		Deaths:        line.Stats.Deaths,
		Assists:       line.Stats.Assists,
		Damage:        line.Stats.Damage,
		Hits:          line.Stats.Hits,
		HeadshotKills: line.Stats.HeadshotKills,
		PlantsDefuses: line.Stats.PlantsDefuses,
		FirstBloods:   line.Stats.FirstBloods,
	}
	switch {
	case summary.Draw:
		c.Draws = 1
	case summary.WinnerTeam == line.Team:
		c.Wins = 1
	default:
		c.Losses = 1
	}
	return c
}

var counterColumns = []string{
	"matches", "wins", "losses", "draws",
	"kills", "deaths", "assists", "damage", "hits",
	"headshot_kills", "plants_defuses", "first_bloods",
}

// upsertCareer inserts the delta or adds it onto an existing row.
func upsertCareer(tx *gorm.DB, delta *PlayerCareer) *gorm.DB {
	updates := make(map[string]interface{}, len(counterColumns)+1)
	for _, col := range counterColumns {
		updates[col] = gorm.Expr(fmt.Sprintf("player_careers.%s + excluded.%s", col, col))
	}
	updates["updated_at"] = gorm.Expr("excluded.updated_at")
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(delta)
}

// SaveMatch records the summary and folds every player line into their career, atomically.
func (s *Store) SaveMatch(ctx context.Context, summary domain.MatchSummary) error {
	rec, err := matchRecord(summary)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return fmt.Errorf("failed to save match %s: %w", summary.MatchID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Already recorded; careers were updated the first time.
			return nil
		}
		for _, line := range summary.Players {
			delta := careerDelta(summary, line)
			if err := upsertCareer(tx, &delta).Error; err != nil {
				return fmt.Errorf("failed to update career %s: %w", line.ID, err)
			}
		}
		return nil
	})
}

// InitCareer creates an empty career once.
func (s *Store) InitCareer(ctx context.Context, userID, callsign string) (bool, error) {
	if userID == "" {
		return false, errors.New("userID is required")
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&PlayerCareer{UserID: userID, Callsign: callsign})
	if res.Error != nil {
		return false, fmt.Errorf("failed to create career: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Career loads a player's career.
func (s *Store) Career(ctx context.Context, userID string) (PlayerCareer, error) {
	var c PlayerCareer
	err := s.db.WithContext(ctx).First(&c, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, ErrNotFound
	}
	return c, err
}

// Leaderboard returns the top players by wins, then kills.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]PlayerCareer, error) {
	var out []PlayerCareer
	err := s.db.WithContext(ctx).Order("wins DESC").Order("kills DESC").Limit(clampLimit(limit)).Find(&out).Error
	return out, err
}

// RecentMatches lists the latest matches, optionally filtered by mode.
func (s *Store) RecentMatches(ctx context.Context, mode string, limit int) ([]MatchRecord, error) {
	q := s.db.WithContext(ctx).Order("ended_at DESC").Limit(clampLimit(limit))
	if mode != "" {
		q = q.Where("mode = ?", mode)
	}
	var out []MatchRecord
	err := q.Find(&out).Error
	return out, err
}

// MatchSummary loads the stored summary document of a match.
func (s *Store) MatchSummary(ctx context.Context, id string) (domain.MatchSummary, error) {
	var rec MatchRecord
	var summary domain.MatchSummary
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return summary, ErrNotFound
	}
	if err != nil {
		return summary, err
	}
	if err := json.Unmarshal([]byte(rec.Summary), &summary); err != nil {
		return summary, fmt.Errorf("failed to decode summary of %s: %w", id, err)
	}
	return summary, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

var (
	_ ports.ResultStore = (*Store)(nil)
	_ ports.CareerPort  = (*Store)(nil)
)
