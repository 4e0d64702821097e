package domain

import "time"

// SideRoundStats aggregates one side's round.
type SideRoundStats struct {
	Team   Team `json:"team"`
	Kills  int  `json:"kills"`
	Deaths int  `json:"deaths"`
	Damage int  `json:"damage"`
	Alive  int  `json:"alive"`
}

// RoundResult is the serializable record of a finished round.
type RoundResult struct {
	MatchID    string         `json:"match_id"`
	Number     int            `json:"number"`
	Winner     Side           `json:"winner"`
	WinnerTeam Team           `json:"winner_team"`
	Reason     RoundEndReason `json:"reason"`
	Attackers  SideRoundStats `json:"attackers"`
	Defenders  SideRoundStats `json:"defenders"`
	Scores     map[Team]int   `json:"scores"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
}

// PlayerLine is a participant's final match line.
type PlayerLine struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Team    Team   `json:"team"`
	Side    Side   `json:"side"`
	Credits int    `json:"credits"`
	Stats   Stats  `json:"stats"`
	// Left marks a player who quit before the match ended. They still count for their team.
	Left bool `json:"left,omitempty"`
}

// MatchSummary is the serializable record of a finished match.
type MatchSummary struct {
	MatchID    string         `json:"match_id"`
	Map        string         `json:"map"`
	Mode       string         `json:"mode"`
	Reason     MatchEndReason `json:"reason"`
	WinnerTeam Team           `json:"winner_team"`
	Draw       bool           `json:"draw"`
	Scores     map[Team]int   `json:"scores"`
	Rounds     []RoundResult  `json:"rounds"`
	Players    []PlayerLine   `json:"players"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
}
