package app

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spikeline/internal/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	n := 0
	reg := NewRegistry(RegistryOptions{
		Clock: clock,
		Sink:  rec,
		Seed:  7,
		NewID: func() string {
			n++
			return fmt.Sprintf("match-%d", n)
		},
	})
	return reg, clock, rec
}

func TestRegistryJoinMovesPlayerBetweenMatches(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	first, err := reg.CreateMatch(testLayout(), testMode(2, 2, 13, 25))
	require.NoError(t, err)
	second, err := reg.CreateMatch(testLayout(), testMode(2, 2, 13, 25))
	require.NoError(t, err)

	require.NoError(t, reg.Join(first.ID(), "p1", "Viper", domain.SideAttacker))
	p, ok := reg.LookupParticipant("p1")
	require.True(t, ok)
	assert.Equal(t, first.ID(), p.MatchID())
	assert.Equal(t, "Viper", p.Name)

	require.NoError(t, reg.Join(second.ID(), "p1", "", domain.SideDefender))
	assert.Equal(t, second.ID(), p.MatchID())
	_, inFirst := first.ParticipantSnapshot("p1")
	assert.False(t, inFirst)
	_, inSecond := second.ParticipantSnapshot("p1")
	assert.True(t, inSecond)

	assert.ErrorIs(t, reg.Join("nope", "p1", "", domain.SideNone), ErrUnknownMatch)
	ids := []string{}
	for _, m := range reg.Matches() {
		ids = append(ids, m.ID())
	}
	assert.Equal(t, []string{"match-1", "match-2"}, ids)
}

func TestRegistryLeaveSpectateAndEnd(t *testing.T) {
	reg, _, rec := newTestRegistry(t)
	m, err := reg.CreateMatch(testLayout(), testMode(1, 1, 13, 25))
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Leave("ghost"), ErrNotInMatch)
	require.NoError(t, reg.Spectate(m.ID(), "s1", "caster"))
	require.NoError(t, reg.Join(m.ID(), "a", "", domain.SideAttacker))
	require.NoError(t, reg.Leave("a"))
	assert.Equal(t, domain.MatchWaiting, m.State())

	require.NoError(t, reg.EndMatch(m.ID(), domain.MatchEndAdmin))
	assert.ErrorIs(t, reg.EndMatch("nope", domain.MatchEndAdmin), ErrUnknownMatch)
	assert.Equal(t, 1, rec.count(EventMatchEnded))

	s, _ := reg.LookupParticipant("s1")
	assert.Empty(t, s.MatchID())
	assert.Equal(t, 1, reg.Reap())
	_, ok := reg.Match(m.ID())
	assert.False(t, ok)
	assert.Zero(t, reg.Reap())
}

func TestRegistryAdvanceDrivesEveryMatch(t *testing.T) {
	reg, clock, rec := newTestRegistry(t)
	for i := 0; i < 2; i++ {
		m, err := reg.CreateMatch(testLayout(), testMode(1, 1, 13, 25))
		require.NoError(t, err)
		require.NoError(t, reg.Join(m.ID(), fmt.Sprintf("a%d", i), "", domain.SideAttacker))
		require.NoError(t, reg.Join(m.ID(), fmt.Sprintf("d%d", i), "", domain.SideDefender))
	}

	clock.Advance(30 * time.Second)
	assert.Positive(t, reg.Advance())
	assert.Equal(t, 2, rec.count(EventCombatStarted))
	for _, m := range reg.Matches() {
		assert.Equal(t, domain.PhaseCombat, m.Snapshot().Round.Phase)
	}
}

func TestParticipantKeepsFirstDisplayName(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	p := reg.Participant("p1", "Viper")
	assert.Equal(t, "Viper", p.Name)
	assert.Same(t, p, reg.Participant("p1", "Sage"))
	assert.Equal(t, "Viper", p.Name)

	assert.Equal(t, "p2", reg.Participant("p2", "").Name)
}
