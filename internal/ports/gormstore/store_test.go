package gormstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"spikeline/internal/domain"
)

// dryRunDB builds statements without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=spikeline dbname=spikeline sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func sampleSummary() domain.MatchSummary {
	return domain.MatchSummary{
		MatchID:    "m1",
		Map:        "Bind",
		Mode:       "competitive",
		Reason:     domain.MatchEndScoreLimit,
		WinnerTeam: domain.TeamAlpha,
		Scores:     map[domain.Team]int{domain.TeamAlpha: 13, domain.TeamBravo: 9},
		Rounds:     make([]domain.RoundResult, 22),
		Players: []domain.PlayerLine{
			{ID: "u1", Name: "Ace", Team: domain.TeamAlpha, Stats: domain.Stats{Kills: 20, Deaths: 10, HeadshotKills: 7}},
			{ID: "u2", Name: "Bolt", Team: domain.TeamBravo, Stats: domain.Stats{Kills: 10, Deaths: 20, PlantsDefuses: 3}},
		},
		StartedAt: time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2026, 2, 1, 20, 45, 0, 0, time.UTC),
	}
}

func TestMatchRecord(t *testing.T) {
	rec, err := matchRecord(sampleSummary())
	require.NoError(t, err)
	assert.Equal(t, "m1", rec.ID)
	assert.Equal(t, 13, rec.ScoreAlpha)
	assert.Equal(t, 9, rec.ScoreBravo)
	assert.Equal(t, 22, rec.Rounds)
	assert.Equal(t, "score_limit", rec.Reason)

	var doc domain.MatchSummary
	require.NoError(t, json.Unmarshal([]byte(rec.Summary), &doc))
	assert.Len(t, doc.Players, 2)
}

func TestRoundRecord(t *testing.T) {
	rec := roundRecord(domain.RoundResult{
		MatchID:   "m1",
		Number:    5,
		Winner:    domain.SideAttacker,
		Reason:    domain.RoundSpikeExploded,
		Attackers: domain.SideRoundStats{Kills: 3, Damage: 450},
		Defenders: domain.SideRoundStats{Kills: 4, Damage: 610},
	})
	assert.Equal(t, "attacker", rec.Winner)
	assert.Equal(t, "spike_exploded", rec.Reason)
	assert.Equal(t, 3, rec.AttackerKills)
	assert.Equal(t, 610, rec.DefenderDamage)
}

func TestCareerDelta(t *testing.T) {
	summary := sampleSummary()

	win := careerDelta(summary, summary.Players[0])
	assert.Equal(t, PlayerCareer{UserID: "u1", Callsign: "Ace", Matches: 1, Wins: 1, Kills: 20, Deaths: 10, HeadshotKills: 7}, win)

	loss := careerDelta(summary, summary.Players[1])
	assert.Equal(t, 1, loss.Losses)
	assert.Equal(t, 3, loss.PlantsDefuses)

	summary.Draw = true
	draw := careerDelta(summary, summary.Players[1])
	assert.Equal(t, 1, draw.Draws)
	assert.Zero(t, draw.Losses)
}

func TestUpsertCareerAddsCounters(t *testing.T) {
	db := dryRunDB(t)
	delta := careerDelta(sampleSummary(), sampleSummary().Players[0])

	stmt := upsertCareer(db, &delta)
	require.NoError(t, stmt.Error)
	sql := stmt.Statement.SQL.String()
	assert.Contains(t, sql, "ON CONFLICT")
	assert.Contains(t, sql, "player_careers.wins + excluded.wins")
	assert.Contains(t, sql, "player_careers.first_bloods + excluded.first_bloods")
	assert.Contains(t, sql, "excluded.updated_at")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0))
	assert.Equal(t, 20, clampLimit(1000))
	assert.Equal(t, 5, clampLimit(5))
}
