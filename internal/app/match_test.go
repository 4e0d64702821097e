package app

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spikeline/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

var (
	siteA = domain.Vec3{X: 50}
	siteB = domain.Vec3{X: -50}
)

func testLayout() domain.Layout {
	return domain.Layout{
		Name: "haven",
		Sites: []domain.SiteRegion{
			{Name: "A", Center: siteA, Radius: 5},
			{Name: "B", Center: siteB, Radius: 5},
		},
		Spawns: map[domain.Side][]domain.Vec3{
			domain.SideAttacker: {{Z: -20}, {X: 1, Z: -20}},
			domain.SideDefender: {{Z: 20}, {X: 1, Z: 20}},
		},
		BuyTime:   30 * time.Second,
		RoundTime: 100 * time.Second,
	}
}

func testMode(minPerTeam, maxPerTeam, roundsToWin, maxRounds int) domain.Mode {
	return domain.Mode{
		Name:        "test",
		MinPerTeam:  minPerTeam,
		MaxPerTeam:  maxPerTeam,
		RoundsToWin: roundsToWin,
		MaxRounds:   maxRounds,
		Rules:       domain.SpikeRules{},
	}
}

type harness struct {
	t       *testing.T
	m       *Match
	clock   *clockwork.FakeClock
	rec     *recorder
	players map[string]*domain.Participant
}

func newHarness(t *testing.T, mode domain.Mode) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	m, err := NewMatch(Options{
		ID:     "m1",
		Layout: testLayout(),
		Mode:   mode,
		Clock:  clock,
		Rand:   rand.New(rand.NewSource(1)),
		Sink:   rec,
	})
	require.NoError(t, err)
	return &harness{t: t, m: m, clock: clock, rec: rec, players: map[string]*domain.Participant{}}
}

func (h *harness) join(id string, side domain.Side) *domain.Participant {
	h.t.Helper()
	p := domain.NewParticipant(id, id)
	require.NoError(h.t, h.m.AddParticipant(p, side))
	h.players[id] = p
	return p
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.m.Advance()
}

// toCombat moves the current round from buy into combat.
func (h *harness) toCombat() {
	h.t.Helper()
	require.Equal(h.t, domain.PhaseBuy, h.m.Snapshot().Round.Phase)
	h.advance(30 * time.Second)
	require.Equal(h.t, domain.PhaseCombat, h.m.Snapshot().Round.Phase)
}

func assertRosters(t *testing.T, m *Match) {
	t.Helper()
	snap := m.Snapshot()
	seen := map[string]domain.Side{}
	for _, team := range snap.Teams {
		for _, p := range team.Members {
			_, dup := seen[p.ID]
			require.False(t, dup, "participant %s on two rosters", p.ID)
			seen[p.ID] = team.Side
			require.Equal(t, team.Side, p.Side, "participant %s side disagrees with roster", p.ID)
		}
	}
	for _, id := range snap.Spectators {
		_, dup := seen[id]
		require.False(t, dup, "spectator %s also on a roster", id)
	}
}

func TestNewMatchRejectsInvalidMode(t *testing.T) {
	_, err := NewMatch(Options{Mode: testMode(0, 5, 13, 25)})
	assert.ErrorIs(t, err, ErrInvalidMode)
	_, err = NewMatch(Options{Mode: testMode(3, 2, 13, 25)})
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestAddParticipantBalancesAndStarts(t *testing.T) {
	h := newHarness(t, testMode(2, 2, 13, 25))

	h.join("a1", domain.SideAttacker)
	h.join("a2", domain.SideAttacker)
	a3 := h.join("a3", domain.SideAttacker)
	assert.Equal(t, domain.SideDefender, a3.Side)
	assert.Equal(t, domain.MatchWaiting, h.m.State())
	assertRosters(t, h.m)

	h.join("n1", domain.SideNone)
	assert.Equal(t, domain.SideDefender, h.players["n1"].Side)
	assert.Equal(t, domain.MatchActive, h.m.State())
	assertRosters(t, h.m)

	err := h.m.AddParticipant(domain.NewParticipant("late", "late"), domain.SideAttacker)
	assert.ErrorIs(t, err, ErrMatchFull)

	kinds := h.rec.kinds()
	assert.Contains(t, kinds, EventMatchStarting)
	assert.Contains(t, kinds, EventMatchStarted)
	snap := h.m.Snapshot()
	assert.Equal(t, 1, snap.Round.Number)
	assert.Equal(t, domain.PhaseBuy, snap.Round.Phase)
	assert.Equal(t, domain.ObjectiveCarried, snap.Objective.State)
}

func TestAddParticipantRejections(t *testing.T) {
	h := newHarness(t, testMode(2, 2, 13, 25))
	p := h.join("a1", domain.SideAttacker)

	assert.ErrorIs(t, h.m.AddParticipant(p, domain.SideDefender), ErrAlreadyInMatch)
	assert.ErrorIs(t, h.m.AddParticipant(domain.NewParticipant("x", "x"), domain.Side("middle")), ErrInvalidSide)

	other := domain.NewParticipant("b1", "b1")
	require.True(t, other.AttachMatch("elsewhere"))
	assert.ErrorIs(t, h.m.AddParticipant(other, domain.SideAttacker), ErrAlreadyInMatch)

	h2 := newHarness(t, testMode(1, 1, 13, 25))
	h2.join("a", domain.SideAttacker)
	h2.join("d", domain.SideAttacker)
	assert.ErrorIs(t, h2.m.AddParticipant(domain.NewParticipant("z", "z"), domain.SideNone), ErrMatchFull)
	assertRosters(t, h2.m)
}

func TestStartingCreditsAndUltimateReset(t *testing.T) {
	h := newHarness(t, testMode(2, 2, 13, 25))
	p := domain.NewParticipant("rich", "rich")
	p.Credits = 9000
	p.UltPoints = 6
	require.NoError(t, h.m.AddParticipant(p, domain.SideAttacker))

	snap, ok := h.m.ParticipantSnapshot("rich")
	require.True(t, ok)
	assert.Equal(t, domain.StartingCredits, snap.Credits)
	assert.Zero(t, snap.UltPoints)
}

func TestFirstRoundGrantsNothingAndLossStreakBonusGrows(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)

	credits := func(id string) int {
		snap, ok := h.m.ParticipantSnapshot(id)
		require.True(t, ok)
		return snap.Credits
	}
	assert.Equal(t, 800, credits("a"))
	assert.Equal(t, 800, credits("d"))

	require.NoError(t, h.m.EndRound(domain.RoundElimination, domain.SideAttacker))
	h.advance(5 * time.Second)
	assert.Equal(t, 800+1900, credits("a"))
	assert.Equal(t, 800+1900+500, credits("d"))

	require.NoError(t, h.m.EndRound(domain.RoundElimination, domain.SideAttacker))
	h.advance(5 * time.Second)
	assert.Equal(t, 800+1900*2, credits("a"))
	assert.Equal(t, 800+1900+500+1900+1000, credits("d"))

	snap := h.m.Snapshot()
	assert.Equal(t, 2, snap.Team(domain.SideDefender).LossStreak)
	assert.Zero(t, snap.Team(domain.SideAttacker).LossStreak)
}

func TestPlantPreconditions(t *testing.T) {
	h := newHarness(t, testMode(2, 2, 13, 25))
	h.join("a1", domain.SideAttacker)
	h.join("a2", domain.SideAttacker)
	h.join("d1", domain.SideDefender)
	h.join("d2", domain.SideDefender)

	carrier := h.m.Snapshot().Objective.CarrierID
	require.Contains(t, []string{"a1", "a2"}, carrier)
	other := "a1"
	if carrier == "a1" {
		other = "a2"
	}

	assert.ErrorIs(t, h.m.Plant(carrier, siteA), ErrWrongPhase)
	h.toCombat()

	before := h.m.Snapshot()
	assert.ErrorIs(t, h.m.Plant(other, siteA), ErrNotCarrier)
	assert.ErrorIs(t, h.m.Plant("d1", siteA), ErrNotCarrier)
	assert.ErrorIs(t, h.m.Plant(carrier, domain.Vec3{}), ErrOutsideSite)
	assert.ErrorIs(t, h.m.Plant("ghost", siteA), ErrNotInMatch)

	after := h.m.Snapshot()
	assert.Equal(t, before.Objective, after.Objective)
	assert.Equal(t, before.Teams, after.Teams)
	assert.Zero(t, h.rec.count(EventSpikePlanted))

	plantedAt := h.clock.Now()
	require.NoError(t, h.m.Plant(carrier, domain.Vec3{X: 52}))
	snap := h.m.Snapshot()
	assert.Equal(t, domain.ObjectivePlanted, snap.Objective.State)
	assert.Equal(t, "A", snap.Objective.Site)
	assert.Empty(t, snap.Objective.CarrierID)
	assert.Equal(t, plantedAt.Add(SpikeFuse), snap.Objective.DetonatesAt)

	require.True(t, h.m.spike.fuse.Active())
	assert.Equal(t, plantedAt.Add(45*time.Second), h.m.spike.fuse.Deadline())
	assert.False(t, h.m.round.roundTimer.Active())

	planter, _ := h.m.ParticipantSnapshot(carrier)
	assert.Equal(t, 800+domain.ObjectiveReward, planter.Credits)
	assert.Equal(t, 1, planter.UltPoints)
	assert.Equal(t, 1, planter.Round.PlantsDefuses)

	assert.ErrorIs(t, h.m.Plant(carrier, siteA), ErrObjectiveState)
}

func TestSpikeExplodesAfterFuseWithoutDoubleRoundEnd(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)
	h.toCombat()

	h.advance(10 * time.Second)
	require.NoError(t, h.m.Plant("a", siteA))

	h.advance(44 * time.Second)
	assert.Equal(t, domain.PhaseCombat, h.m.Snapshot().Round.Phase)
	assert.Zero(t, h.rec.count(EventRoundEnded))

	h.advance(time.Second)
	snap := h.m.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, domain.RoundSpikeExploded, snap.History[0].Reason)
	assert.Equal(t, domain.SideAttacker, snap.History[0].Winner)
	assert.Equal(t, 1, h.rec.count(EventSpikeExploded))

	// Past the point where the first round's combat timer would have expired.
	h.advance(60 * time.Second)
	assert.Equal(t, 1, h.rec.count(EventRoundEnded))
	assert.Len(t, h.m.Snapshot().History, 1)
}

func TestDefuseCancelsDetonation(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)
	h.toCombat()
	require.NoError(t, h.m.Plant("a", siteA))

	require.NoError(t, h.m.Move("d", domain.Vec3{X: 53}))
	assert.ErrorIs(t, h.m.Defuse("d"), ErrOutOfRange)
	assert.ErrorIs(t, h.m.Defuse("a"), ErrWrongSide)

	require.NoError(t, h.m.Move("d", domain.Vec3{X: 51.5}))
	fuse := h.m.spike.fuse
	require.NoError(t, h.m.Defuse("d"))
	assert.False(t, fuse.Active())

	snap := h.m.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, domain.RoundSpikeDefused, snap.History[0].Reason)
	assert.Equal(t, domain.SideDefender, snap.History[0].Winner)

	defuser := snap.Team(domain.SideDefender).Members[0]
	assert.Equal(t, 800+domain.ObjectiveReward, defuser.Credits)
	assert.Equal(t, 1, defuser.Match.PlantsDefuses)

	h.advance(2 * time.Minute)
	assert.Zero(t, h.rec.count(EventSpikeExploded))
	assert.Equal(t, domain.RoundSpikeDefused, h.m.Snapshot().History[0].Reason)
}

func TestRoundTimeoutAwardsDefenders(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)
	h.toCombat()

	h.advance(99 * time.Second)
	assert.Zero(t, h.rec.count(EventRoundEnded))
	h.advance(time.Second)

	snap := h.m.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, domain.RoundTimeExpired, snap.History[0].Reason)
	assert.Equal(t, domain.SideDefender, snap.History[0].Winner)
	assert.Equal(t, 1, snap.Team(domain.SideDefender).Score)
}

func TestEliminationEndsRoundOnce(t *testing.T) {
	h := newHarness(t, testMode(2, 2, 13, 25))
	h.join("a1", domain.SideAttacker)
	h.join("a2", domain.SideAttacker)
	h.join("d1", domain.SideDefender)
	h.join("d2", domain.SideDefender)
	h.toCombat()

	require.NoError(t, h.m.Damage("a1", "d1", 150, true))
	assert.Zero(t, h.rec.count(EventRoundEnded))
	require.NoError(t, h.m.Eliminate("d2", ""))

	snap := h.m.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, domain.RoundElimination, snap.History[0].Reason)
	assert.Equal(t, domain.SideAttacker, snap.History[0].Winner)
	assert.Equal(t, 2, snap.History[0].Attackers.Alive)
	assert.Equal(t, 2, snap.History[0].Defenders.Deaths)

	assert.ErrorIs(t, h.m.Eliminate("a1", "d1"), ErrWrongPhase)
	assert.ErrorIs(t, h.m.EndRound(domain.RoundTimeExpired, domain.SideDefender), ErrRoundNotLive)
	assert.Equal(t, 1, h.rec.count(EventRoundEnded))
}

func TestConcurrentRoundEndsResolveOnce(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)
	h.toCombat()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				err = h.m.EndRound(domain.RoundTimeExpired, domain.SideDefender)
			case 1:
				err = h.m.Eliminate("d", "a")
			default:
				err = h.m.Eliminate("a", "d")
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, h.rec.count(EventRoundEnded))
	assertRosters(t, h.m)
}

func TestKillRewardsAndAssists(t *testing.T) {
	h := newHarness(t, testMode(2, 2, 13, 25))
	h.join("a1", domain.SideAttacker)
	h.join("a2", domain.SideAttacker)
	h.join("d1", domain.SideDefender)
	h.join("d2", domain.SideDefender)
	h.toCombat()

	require.NoError(t, h.m.Damage("a1", "d1", 40, false))
	require.NoError(t, h.m.Damage("a2", "d1", 80, true))

	killer, _ := h.m.ParticipantSnapshot("a2")
	assert.Equal(t, 800+domain.KillReward, killer.Credits)
	assert.Equal(t, 1, killer.UltPoints)
	assert.Equal(t, 1, killer.Round.Kills)
	assert.Equal(t, 1, killer.Round.HeadshotKills)
	assert.Equal(t, 1, killer.Round.FirstBloods)
	assert.Equal(t, 60, killer.Round.Damage)

	helper, _ := h.m.ParticipantSnapshot("a1")
	assert.Equal(t, 1, helper.Round.Assists)
	assert.Equal(t, 800, helper.Credits)

	victim, _ := h.m.ParticipantSnapshot("d1")
	assert.False(t, victim.Alive)
	assert.Equal(t, 1, victim.Round.Deaths)

	require.NoError(t, h.m.Damage("d2", "a1", 150, false))
	second, _ := h.m.ParticipantSnapshot("d2")
	assert.Zero(t, second.Round.FirstBloods)

	assert.ErrorIs(t, h.m.Damage("d1", "a2", 10, false), ErrNotAlive)
	assert.ErrorIs(t, h.m.Damage("a2", "d2", 0, false), ErrInvalidDamage)
}

func TestSelfEliminationGrantsNothing(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)
	h.toCombat()

	require.NoError(t, h.m.Eliminate("a", "a"))
	snap := h.m.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, domain.SideDefender, snap.History[0].Winner)

	a, _ := h.m.ParticipantSnapshot("a")
	assert.Equal(t, 800, a.Credits)
	assert.Zero(t, a.UltPoints)
	assert.Zero(t, a.Match.Kills)
	assert.Equal(t, 1, a.Match.Deaths)
	assert.Equal(t, 1, a.Career.Deaths)
}

func TestSideSwapHappensOnceBeforeRoundRoundsToWin(t *testing.T) {
	h := newHarness(t, testMode(1, 2, 3, 5))
	h.join("a1", domain.SideAttacker)
	h.join("a2", domain.SideAttacker)
	h.join("d1", domain.SideDefender)
	require.Equal(t, domain.MatchActive, h.m.State())

	attackers := func() []string {
		var ids []string
		for _, p := range h.m.Snapshot().Team(domain.SideAttacker).Members {
			ids = append(ids, p.ID)
		}
		return ids
	}
	defenders := func() []string {
		var ids []string
		for _, p := range h.m.Snapshot().Team(domain.SideDefender).Members {
			ids = append(ids, p.ID)
		}
		return ids
	}

	require.NoError(t, h.m.EndRound(domain.RoundTimeExpired, domain.SideDefender))
	assert.Zero(t, h.rec.count(EventSidesSwapped))
	h.advance(5 * time.Second)

	firstHalfAttackers, firstHalfDefenders := attackers(), defenders()
	require.NoError(t, h.m.EndRound(domain.RoundTimeExpired, domain.SideAttacker))
	assert.Equal(t, 1, h.rec.count(EventSidesSwapped))
	assert.ElementsMatch(t, firstHalfAttackers, defenders())
	assert.ElementsMatch(t, firstHalfDefenders, attackers())
	assertRosters(t, h.m)

	h.advance(5 * time.Second)
	snap := h.m.Snapshot()
	assert.Equal(t, 3, snap.Round.Number)
	assert.Equal(t, 1, snap.Team(domain.SideAttacker).Score)
	assert.Equal(t, 1, snap.Team(domain.SideDefender).Score)

	for h.m.State() == domain.MatchActive {
		require.NoError(t, h.m.EndRound(domain.RoundTimeExpired, domain.SideDefender))
		h.advance(5 * time.Second)
	}
	assert.Equal(t, 1, h.rec.count(EventSidesSwapped))

	kinds := h.rec.kinds()
	swapAt, round3At := -1, -1
	rounds := 0
	for i, k := range kinds {
		if k == EventSidesSwapped {
			swapAt = i
		}
		if k == EventRoundStarted {
			rounds++
			if rounds == 3 {
				round3At = i
			}
		}
	}
	assert.Less(t, swapAt, round3At)
}

func TestMatchEndsWhenPlayersDropBelowMinimum(t *testing.T) {
	h := newHarness(t, testMode(1, 2, 13, 25))
	a := h.join("a", domain.SideAttacker)
	d := h.join("d", domain.SideDefender)
	h.toCombat()

	require.NoError(t, h.m.RemoveParticipant("d"))
	assert.Equal(t, domain.MatchEnded, h.m.State())
	assert.Zero(t, h.m.timers.Pending())

	summary, ok := h.m.Summary()
	require.True(t, ok)
	assert.Equal(t, domain.MatchEndNotEnoughPlayers, summary.Reason)
	assert.True(t, summary.Draw)

	assert.Empty(t, a.MatchID())
	assert.Empty(t, d.MatchID())
	assert.Equal(t, domain.SideNone, a.Side)
	assert.Equal(t, domain.SideNone, d.Side)
	assert.ErrorIs(t, h.m.RemoveParticipant("a"), ErrNotInMatch)
}

func TestLeavingEmptiesSideDuringCombat(t *testing.T) {
	h := newHarness(t, testMode(1, 2, 13, 25))
	h.join("a1", domain.SideAttacker)
	h.join("a2", domain.SideAttacker)
	h.join("d1", domain.SideDefender)
	h.toCombat()

	require.NoError(t, h.m.RemoveParticipant("d1"))
	assert.Equal(t, domain.MatchActive, h.m.State())
	snap := h.m.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, domain.RoundElimination, snap.History[0].Reason)
	assert.Equal(t, domain.SideAttacker, snap.History[0].Winner)
}

func TestMatchEndsByMaxRoundsWithoutStartingAnother(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 3, 2))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)

	for round := 1; round <= 2; round++ {
		h.toCombat()
		require.NoError(t, h.m.Damage("a", "d", 100, false))
		h.advance(5 * time.Second)
	}

	assert.Equal(t, domain.MatchEnded, h.m.State())
	summary, ok := h.m.Summary()
	require.True(t, ok)
	assert.Equal(t, domain.MatchEndMaxRounds, summary.Reason)
	assert.Equal(t, domain.TeamAlpha, summary.WinnerTeam)
	assert.Equal(t, map[domain.Team]int{domain.TeamAlpha: 2, domain.TeamBravo: 0}, summary.Scores)
	assert.Len(t, summary.Rounds, 2)
	assert.Equal(t, 2, h.rec.count(EventRoundStarted))
	assert.Zero(t, h.rec.count(EventSidesSwapped))
	require.Len(t, summary.Players, 2)
}

func TestMatchEndsByScoreLimit(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 2, 3))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)

	h.toCombat()
	require.NoError(t, h.m.Eliminate("d", "a"))
	h.advance(5 * time.Second)

	// Sides swapped after round one: team alpha now defends.
	h.toCombat()
	require.NoError(t, h.m.Eliminate("d", "a"))

	summary, ok := h.m.Summary()
	require.True(t, ok)
	assert.Equal(t, domain.MatchEndScoreLimit, summary.Reason)
	assert.Equal(t, domain.TeamAlpha, summary.WinnerTeam)
	assert.False(t, summary.Draw)
	assert.Equal(t, 2, summary.Players[0].Stats.Kills)
	assert.Equal(t, 2, summary.Players[0].Stats.FirstBloods)
}

func TestEndMatchIsIdempotentAndSilencesTimers(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)
	h.toCombat()
	require.NoError(t, h.m.Plant("a", siteB))

	assert.True(t, h.m.EndMatch(domain.MatchEndAdmin))
	assert.False(t, h.m.EndMatch(domain.MatchEndAdmin))
	assert.Zero(t, h.m.timers.Pending())

	events := len(h.rec.kinds())
	h.advance(10 * time.Minute)
	assert.Equal(t, events, len(h.rec.kinds()))
	assert.Equal(t, 1, h.rec.count(EventMatchEnded))
	assert.Zero(t, h.rec.count(EventSpikeExploded))

	summary, _ := h.m.Summary()
	assert.Equal(t, domain.MatchEndAdmin, summary.Reason)
	assert.Empty(t, summary.Rounds)
	assert.Equal(t, domain.MatchEnded, h.m.Snapshot().State)
}

func TestPurchaseRules(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)

	require.NoError(t, h.m.Purchase("a", "light_armor"))
	require.NoError(t, h.m.Purchase("a", "classic"))
	assert.ErrorIs(t, h.m.Purchase("a", "ghost"), ErrInsufficientCredits)
	assert.ErrorIs(t, h.m.Purchase("a", "bazooka"), ErrUnknownItem)

	a, _ := h.m.ParticipantSnapshot("a")
	assert.Equal(t, 800-400, a.Credits)
	assert.Equal(t, 25, a.Armor)
	assert.Equal(t, []string{"classic"}, a.Loadout)

	h.toCombat()
	assert.ErrorIs(t, h.m.Purchase("d", "ghost"), ErrWrongPhase)

	require.NoError(t, h.m.Damage("d", "a", 40, false))
	a, _ = h.m.ParticipantSnapshot("a")
	assert.Equal(t, 80, a.Health)
	assert.Equal(t, 5, a.Armor)
}

func TestPurchaseRequiresBuyZone(t *testing.T) {
	layout := testLayout()
	layout.BuyZones = []domain.BuyZone{
		{Side: domain.SideAttacker, Corner: domain.Vec3{X: -5, Y: -5, Z: -25}, Other: domain.Vec3{X: 5, Y: 5, Z: -15}},
	}
	m, err := NewMatch(Options{Layout: layout, Mode: testMode(1, 1, 13, 25), Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)
	require.NoError(t, m.AddParticipant(domain.NewParticipant("a", "a"), domain.SideAttacker))
	require.NoError(t, m.AddParticipant(domain.NewParticipant("d", "d"), domain.SideDefender))

	require.NoError(t, m.Purchase("a", "classic"))
	require.NoError(t, m.Move("a", domain.Vec3{X: 40}))
	assert.ErrorIs(t, m.Purchase("a", "ghost"), ErrOutsideBuyZone)
	require.NoError(t, m.Purchase("d", "ghost"))
}

func TestUltimateAndAbilityCooldowns(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	a := h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)

	assert.ErrorIs(t, h.m.ActivateUltimate("a"), ErrUltimateNotReady)
	a.AddUltPoints(domain.MaxUltPoints)
	require.NoError(t, h.m.ActivateUltimate("a"))
	assert.ErrorIs(t, h.m.ActivateUltimate("a"), ErrUltimateActive)

	snap, _ := h.m.ParticipantSnapshot("a")
	assert.Zero(t, snap.UltPoints)
	assert.True(t, snap.UltActive)

	require.NoError(t, h.m.UseAbility("a", "dash", 10*time.Second))
	assert.ErrorIs(t, h.m.UseAbility("a", "dash", 10*time.Second), ErrAbilityCooldown)
	snap, _ = h.m.ParticipantSnapshot("a")
	assert.Equal(t, 10*time.Second, snap.Cooldowns["dash"])

	h.advance(10 * time.Second)
	require.NoError(t, h.m.UseAbility("a", "dash", 10*time.Second))
	assert.Equal(t, 2, h.rec.count(EventAbilityUsed))
}

func TestCarrierDeathDropsSpike(t *testing.T) {
	h := newHarness(t, testMode(2, 2, 13, 25))
	h.join("a1", domain.SideAttacker)
	h.join("a2", domain.SideAttacker)
	h.join("d1", domain.SideDefender)
	h.join("d2", domain.SideDefender)
	h.toCombat()

	carrier := h.m.Snapshot().Objective.CarrierID
	other := "a1"
	if carrier == "a1" {
		other = "a2"
	}
	require.NoError(t, h.m.Move(carrier, domain.Vec3{X: 10, Z: 10}))
	require.NoError(t, h.m.Damage("d1", carrier, 200, false))

	snap := h.m.Snapshot()
	assert.Equal(t, domain.ObjectiveDropped, snap.Objective.State)
	assert.Equal(t, domain.Vec3{X: 10, Z: 10}, snap.Objective.Position)

	assert.ErrorIs(t, h.m.PickUpSpike(other), ErrOutOfRange)
	require.NoError(t, h.m.Move("d2", domain.Vec3{X: 10, Z: 11}))
	assert.ErrorIs(t, h.m.PickUpSpike("d2"), ErrWrongSide)

	require.NoError(t, h.m.Move(other, domain.Vec3{X: 11, Z: 10}))
	require.NoError(t, h.m.PickUpSpike(other))
	snap = h.m.Snapshot()
	assert.Equal(t, domain.ObjectiveCarried, snap.Objective.State)
	assert.Equal(t, other, snap.Objective.CarrierID)
	require.NoError(t, h.m.Plant(other, siteB))
}

func TestBoxingRulesEndRoundOnHitLimit(t *testing.T) {
	mode := testMode(1, 1, 1, 1)
	mode.Rules = domain.BoxingRules{HitLimit: 3}
	h := newHarness(t, mode)
	h.join("red", domain.SideAttacker)
	h.join("blue", domain.SideDefender)
	assert.Equal(t, domain.ObjectiveUnspawned, h.m.Snapshot().Objective.State)
	h.toCombat()

	require.NoError(t, h.m.Damage("blue", "red", 5, false))
	require.NoError(t, h.m.Damage("blue", "red", 5, false))
	red, _ := h.m.ParticipantSnapshot("red")
	assert.Equal(t, 100, red.Health)
	require.NoError(t, h.m.Damage("blue", "red", 5, false))

	summary, ok := h.m.Summary()
	require.True(t, ok)
	require.Len(t, summary.Rounds, 1)
	assert.Equal(t, domain.RoundHitLimit, summary.Rounds[0].Reason)
	assert.Equal(t, domain.TeamBravo, summary.WinnerTeam)
	assert.ErrorIs(t, h.m.Plant("red", siteA), ErrMatchNotActive)
}

func TestSpectatorsStayOffRosters(t *testing.T) {
	h := newHarness(t, testMode(1, 1, 13, 25))
	h.join("a", domain.SideAttacker)
	watcher := domain.NewParticipant("s", "s")
	require.NoError(t, h.m.AddSpectator(watcher))
	assert.ErrorIs(t, h.m.AddSpectator(watcher), ErrAlreadyInMatch)
	assert.ErrorIs(t, h.m.AddParticipant(watcher, domain.SideDefender), ErrAlreadyInMatch)
	assertRosters(t, h.m)

	assert.Equal(t, []string{"s"}, h.m.Snapshot().Spectators)
	require.NoError(t, h.m.RemoveParticipant("s"))
	assert.Empty(t, watcher.MatchID())
}

func TestPanickingSinkDoesNotBreakMatch(t *testing.T) {
	rec := &recorder{}
	boom := SinkFunc(func(context.Context, Event) { panic("sink down") })
	m, err := NewMatch(Options{Mode: testMode(1, 1, 13, 25), Clock: clockwork.NewFakeClock(), Sink: MultiSink{rec, boom}})
	require.NoError(t, err)

	require.NoError(t, m.AddParticipant(domain.NewParticipant("a", "a"), domain.SideAttacker))
	require.NoError(t, m.AddParticipant(domain.NewParticipant("d", "d"), domain.SideDefender))
	assert.Equal(t, domain.MatchActive, m.State())
	assert.Equal(t, 1, rec.count(EventMatchStarted))
}

func TestLeaverStaysInMatchSummary(t *testing.T) {
	h := newHarness(t, testMode(1, 2, 13, 25))
	h.join("a", domain.SideAttacker)
	h.join("d", domain.SideDefender)
	h.toCombat()

	require.NoError(t, h.m.Damage("d", "a", 30, false))
	require.NoError(t, h.m.RemoveParticipant("d"))

	summary, ok := h.m.Summary()
	require.True(t, ok)
	require.Len(t, summary.Players, 2)
	byID := map[string]domain.PlayerLine{}
	for _, line := range summary.Players {
		byID[line.ID] = line
	}
	leaver, ok := byID["d"]
	require.True(t, ok)
	assert.True(t, leaver.Left)
	assert.Equal(t, domain.TeamBravo, leaver.Team)
	assert.Equal(t, domain.SideDefender, leaver.Side)
	assert.Equal(t, 30, leaver.Stats.Damage)
	assert.False(t, byID["a"].Left)
}

func TestLeaverBeforeStartIsNotSummarised(t *testing.T) {
	h := newHarness(t, testMode(1, 2, 13, 25))
	h.join("early", domain.SideAttacker)
	require.NoError(t, h.m.RemoveParticipant("early"))
	h.join("a1", domain.SideAttacker)
	h.join("a2", domain.SideAttacker)
	h.join("d1", domain.SideDefender)
	require.Equal(t, domain.MatchActive, h.m.State())

	require.NoError(t, h.m.RemoveParticipant("a2"))
	require.True(t, h.m.EndMatch(domain.MatchEndAdmin))
	summary, ok := h.m.Summary()
	require.True(t, ok)
	ids := []string{}
	for _, line := range summary.Players {
		ids = append(ids, line.ID)
	}
	assert.ElementsMatch(t, []string{"a1", "a2", "d1"}, ids)
}
