package wager_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/wager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settleReq(id, option string, winner, loser int) wager.SettleRequest {
	return wager.SettleRequest{
		WagerID:         id,
		WinningOptionID: option,
		WinnerDelta:     winner,
		LoserDelta:      loser,
		Actor:           domain.Actor{ID: "admin"},
	}
}

// lockedWithVotes crea una apuesta [🔵 p1 p2 p3, 🔴 p4] y la bloquea.
func lockedWithVotes(t *testing.T, f *fixture) domain.Wager {
	t.Helper()
	w := f.create(t, "Blue or Red", 10*time.Minute)
	for _, pid := range []string{"p1", "p2", "p3"} {
		f.react(t, w.ID, pid, blue)
	}
	f.react(t, w.ID, "p4", red)
	return f.lockAfterDeadline(t, w)
}

func TestSettler_SettleFromSnapshot(t *testing.T) {
	f := newFixture(t)
	w := lockedWithVotes(t, f)

	_, err := f.db.ApplyDeltas(f.ctx, map[string]int{"p4": 10})
	require.NoError(t, err)

	res, err := f.svc.Settle(f.ctx, settleReq(w.ID, "1", 8, 3))
	require.NoError(t, err)

	assert.False(t, res.AlreadySettled)
	assert.Equal(t, "Blue", res.WinnerLabel)
	assert.Equal(t, domain.SourceSnapshot, res.Source)
	assert.Equal(t, 3, res.Winners())
	require.Len(t, res.Outcomes, 4)
	assert.Equal(t, domain.Outcome{
		ParticipantID: "p4", Status: domain.OutcomeLost, Delta: -3,
		VoteLabel: "Red", WinnerLabel: "Blue", Balance: 7,
	}, res.Outcomes[3])

	for pid, want := range map[string]int{"p1": 8, "p2": 8, "p3": 8, "p4": 7} {
		got, err := f.svc.Balance(f.ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, want, got, pid)
	}

	// la apuesta sale del registro activo y queda archivada
	_, err = f.svc.Get(f.ctx, w.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	rec, err := f.db.GetSettled(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, rec.Wager.State)
	assert.True(t, rec.Wager.Options[0].IsWinner)
	assert.NotEmpty(t, rec.SettlementID)
	_, err = f.db.GetSnapshot(f.ctx, w.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// avisos, anuncio y publicación
	notices := f.platform.Notices("p1")
	require.Len(t, notices, 1)
	assert.Equal(t, domain.NoticeSettled, notices[0].Kind)
	assert.Equal(t, 8, notices[0].Outcome.Balance)
	ann, _ := f.platform.Announcement(w.ID)
	assert.Contains(t, ann.Content, "Winner: Blue")
	require.Len(t, f.platform.Published(), 1)
}

func TestSettler_SettleTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	w := lockedWithVotes(t, f)

	_, err := f.svc.Settle(f.ctx, settleReq(w.ID, "1", 8, 3))
	require.NoError(t, err)

	res, err := f.svc.Settle(f.ctx, settleReq(w.ID, "2", 50, 50))
	require.NoError(t, err)
	assert.True(t, res.AlreadySettled)
	assert.Equal(t, "Blue", res.WinnerLabel, "the archived result is reported")

	bal, err := f.svc.Balance(f.ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, bal, "no re-credit")
	assert.Len(t, f.platform.Notices("p1"), 1)
	assert.Len(t, f.platform.Published(), 1)
}

func TestSettler_UnknownWagerIsAlreadySettled(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Settle(f.ctx, settleReq("never-existed", "1", 6, 2))
	require.NoError(t, err)
	assert.True(t, res.AlreadySettled)
	assert.Empty(t, res.Outcomes)
}

func TestSettler_Rejections(t *testing.T) {
	f := newFixture(t)
	open := f.create(t, "still open", time.Hour)
	locked := lockedWithVotes(t, f)

	_, err := f.svc.Settle(f.ctx, settleReq(open.ID, "1", 6, 2))
	assert.ErrorIs(t, err, domain.ErrNotLocked)

	_, err = f.svc.Settle(f.ctx, settleReq(locked.ID, "3", 6, 2))
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.Settle(f.ctx, settleReq(locked.ID, "1", -1, 2))
	assert.True(t, domain.IsValidation(err))

	// nada cambió
	assert.Equal(t, domain.StateLocked, f.get(t, locked.ID).State)
	top, err := f.svc.Leaderboard(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestSettler_LiveFallbackWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)
	f.react(t, w.ID, "p1", blue)
	f.react(t, w.ID, "p2", red)

	// lock degradado: la transición ocurrió sin snapshot
	_, err := f.svc.Registry.Transition(f.ctx, w.ID, domain.StateLocked, nil)
	require.NoError(t, err)

	res, err := f.svc.Settle(f.ctx, settleReq(w.ID, "2", 6, 2))
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLive, res.Source)
	assert.Equal(t, 1, res.Winners())

	bal, err := f.svc.Balance(f.ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 6, bal)
}

func TestSettler_ZeroDeltasStillArchive(t *testing.T) {
	f := newFixture(t)
	w := lockedWithVotes(t, f)

	res, err := f.svc.Settle(f.ctx, settleReq(w.ID, "2", 0, 0))
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 4)

	top, err := f.svc.Leaderboard(f.ctx, 10)
	require.NoError(t, err)
	for _, e := range top {
		assert.Equal(t, 0, e.Points)
	}
	_, err = f.db.GetSettled(f.ctx, w.ID)
	assert.NoError(t, err)
}

func TestSettler_SuggestUsesFrozenCounts(t *testing.T) {
	f := newFixture(t)
	w := lockedWithVotes(t, f)

	s, err := f.svc.SuggestFor(f.ctx, w.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, 8, s.WinnerPoints)
	assert.Equal(t, 3, s.LoserPoints)

	s, err = f.svc.SuggestFor(f.ctx, w.ID, "2")
	require.NoError(t, err)
	assert.Equal(t, 24, s.WinnerPoints)
	assert.Equal(t, 8, s.LoserPoints)

	s, err = f.svc.SuggestFor(f.ctx, w.ID, "9")
	require.NoError(t, err)
	assert.True(t, s.Fallback)
	assert.Equal(t, 3, s.WinnerPoints)
}

func TestService_DisplayOddsFollowsArchive(t *testing.T) {
	f := newFixture(t)
	w := lockedWithVotes(t, f)

	_, mult, err := f.svc.DisplayOdds(f.ctx, w.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3, mult[0], 1e-9)
	assert.InDelta(t, 4.0, mult[1], 1e-9)

	_, err = f.svc.Settle(f.ctx, settleReq(w.ID, "1", 8, 3))
	require.NoError(t, err)

	got, mult, err := f.svc.DisplayOdds(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, got.State)
	assert.InDelta(t, 4.0, mult[1], 1e-9)

	_, _, err = f.svc.DisplayOdds(f.ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
