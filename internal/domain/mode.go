package domain

import (
	"sort"
	"strings"
	"time"
)

// Mode holds the fixed parameters of a match type.
type Mode struct {
	Name        string
	MinPerTeam  int
	MaxPerTeam  int
	RoundsToWin int
	MaxRounds   int
	// BuyTime and RoundTime override the layout's timers when non-zero.
	BuyTime   time.Duration
	RoundTime time.Duration
	Rules     RoundRules
}

// SwapAfterRound is the round after which sides are exchanged. Zero means never.
func (m Mode) SwapAfterRound() int {
	if m.RoundsToWin <= 1 {
		return 0
	}
	return m.RoundsToWin - 1
}

// MinPlayers is the total headcount below which an active match is abandoned.
func (m Mode) MinPlayers() int {
	return 2 * m.MinPerTeam
}

// PhaseTimes resolves buy and round durations against a layout.
func (m Mode) PhaseTimes(l Layout) (buy, round time.Duration) {
	buy, round = m.BuyTime, m.RoundTime
	if buy <= 0 {
		buy = l.BuyTime
	}
	if buy <= 0 {
		buy = DefaultBuyTime
	}
	if round <= 0 {
		round = l.RoundTime
	}
	if round <= 0 {
		round = DefaultRoundTime
	}
	return buy, round
}

var modes = map[string]Mode{
	"competitive": {Name: "competitive", MinPerTeam: 2, MaxPerTeam: 5, RoundsToWin: 13, MaxRounds: 25, Rules: SpikeRules{}},
	"unrated":     {Name: "unrated", MinPerTeam: 2, MaxPerTeam: 5, RoundsToWin: 13, MaxRounds: 25, Rules: SpikeRules{}},
	"spikerush":   {Name: "spikerush", MinPerTeam: 1, MaxPerTeam: 5, RoundsToWin: 7, MaxRounds: 13, BuyTime: 10 * time.Second, Rules: SpikeRules{}},
	"duel":        {Name: "duel", MinPerTeam: 1, MaxPerTeam: 1, RoundsToWin: 5, MaxRounds: 9, BuyTime: 10 * time.Second, RoundTime: 60 * time.Second, Rules: DuelRules{}},
	"boxing":      {Name: "boxing", MinPerTeam: 1, MaxPerTeam: 1, RoundsToWin: 1, MaxRounds: 1, BuyTime: 5 * time.Second, RoundTime: 180 * time.Second, Rules: BoxingRules{HitLimit: DefaultHitLimit}},
	"sumo":        {Name: "sumo", MinPerTeam: 1, MaxPerTeam: 1, RoundsToWin: 2, MaxRounds: 3, BuyTime: 5 * time.Second, RoundTime: 60 * time.Second, Rules: SumoRules{}},
}

// LookupMode returns a built-in mode by case-insensitive name.
func LookupMode(name string) (Mode, bool) {
	m, ok := modes[strings.ToLower(name)]
	return m, ok
}

// ModeNames lists the built-in modes alphabetically.
func ModeNames() []string {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
