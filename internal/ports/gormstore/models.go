package gormstore

import "time"

// MatchRecord is one finished match. Summary keeps the full document for replays and audits.
type MatchRecord struct {
	ID         string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Map        string `gorm:"type:varchar(64);index" json:"map"`
	Mode       string `gorm:"type:varchar(32);index" json:"mode"`
	Reason     string `gorm:"type:varchar(32)" json:"reason"`
	WinnerTeam string `gorm:"type:varchar(16)" json:"winner_team"`
	Draw       bool   `json:"draw"`
	ScoreAlpha int    `json:"score_alpha"`
	ScoreBravo int    `json:"score_bravo"`
	Rounds     int    `json:"rounds"`
	Summary    string `gorm:"type:jsonb" json:"-"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `gorm:"index" json:"ended_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RoundRecord is one resolved round, written as soon as the round ends.
type RoundRecord struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	MatchID    string `gorm:"type:varchar(64);uniqueIndex:idx_round_match_number;not null" json:"match_id"`
	Number     int    `gorm:"uniqueIndex:idx_round_match_number;not null" json:"number"`
	Winner     string `gorm:"type:varchar(16)" json:"winner"`
	WinnerTeam string `gorm:"type:varchar(16)" json:"winner_team"`
	Reason     string `gorm:"type:varchar(32)" json:"reason"`

	AttackerKills  int `json:"attacker_kills"`
	DefenderKills  int `json:"defender_kills"`
	AttackerDamage int `json:"attacker_damage"`
	DefenderDamage int `json:"defender_damage"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// PlayerCareer accumulates a player's totals across matches.
type PlayerCareer struct {
	UserID   string `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Callsign string `gorm:"type:varchar(64)" json:"callsign"`

	Matches int `gorm:"default:0" json:"matches"`
	Wins    int `gorm:"default:0;index" json:"wins"`
	Losses  int `gorm:"default:0" json:"losses"`
	Draws   int `gorm:"default:0" json:"draws"`

	Kills         int `gorm:"default:0" json:"kills"`
	Deaths        int `gorm:"default:0" json:"deaths"`
	Assists       int `gorm:"default:0" json:"assists"`
	Damage        int `gorm:"default:0" json:"damage"`
	Hits          int `gorm:"default:0" json:"hits"`
	HeadshotKills int `gorm:"default:0" json:"headshot_kills"`
	PlantsDefuses int `gorm:"default:0" json:"plants_defuses"`
	FirstBloods   int `gorm:"default:0" json:"first_bloods"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
