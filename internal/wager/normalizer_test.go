package wager_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_AcceptsFirstVote(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)

	d, err := f.svc.Normalizer.HandleCast(f.ctx, domain.VoteEvent{ParticipantID: "p1", RawToken: blue, WagerID: w.ID})
	require.NoError(t, err)
	assert.True(t, d.Accepted)
	assert.Equal(t, domain.ReasonAccepted, d.Reason)

	got := f.get(t, w.ID)
	assert.Equal(t, []int{1, 0}, got.Counts())
	assert.Equal(t, blue, got.Ballots["p1"].Token)
	assert.Equal(t, start, got.Ballots["p1"].CastAt, "cast time defaults to the clock")
}

func TestNormalizer_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)
	ev := domain.VoteEvent{ParticipantID: "p1", RawToken: blue, WagerID: w.ID, At: start}

	for i := 0; i < 3; i++ {
		d, err := f.svc.Normalizer.HandleCast(f.ctx, ev)
		require.NoError(t, err)
		assert.True(t, d.Accepted)
	}
	d, err := f.svc.Normalizer.HandleCast(f.ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonDuplicate, d.Reason)

	got := f.get(t, w.ID)
	assert.Equal(t, []int{1, 0}, got.Counts())
	assert.Empty(t, f.platform.Removed())
}

func TestNormalizer_UnknownTokenRemoved(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)

	d, err := f.svc.Normalizer.HandleCast(f.ctx, domain.VoteEvent{ParticipantID: "p1", RawToken: "🟢", WagerID: w.ID})
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Equal(t, domain.ReasonUnknownToken, d.Reason)
	assert.Equal(t, []domain.Marker{{ParticipantID: "p1", Token: "🟢"}}, f.platform.Removed())
	assert.Equal(t, 0, f.get(t, w.ID).TotalVotes())
}

func TestNormalizer_FirstVoteWins(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)

	f.react(t, w.ID, "p3", blue)
	f.react(t, w.ID, "p3", red)

	got := f.get(t, w.ID)
	assert.Equal(t, []int{1, 0}, got.Counts())
	assert.Equal(t, blue, got.Ballots["p3"].Token)
	assert.Empty(t, f.platform.Markers(w.ID, red), "second marker is taken down")
	assert.Equal(t, []string{"p3"}, f.platform.Markers(w.ID, blue))
}

func TestNormalizer_ClosedWagerRejectsVotes(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)

	f.clock.Advance(10 * time.Minute) // exactamente en el deadline
	d, err := f.svc.Normalizer.HandleCast(f.ctx, domain.VoteEvent{ParticipantID: "p1", RawToken: blue, WagerID: w.ID})
	require.NoError(t, err)
	assert.False(t, d.Accepted)
	assert.Equal(t, domain.ReasonClosed, d.Reason)
	assert.Len(t, f.platform.Removed(), 1)
	assert.Equal(t, 0, f.get(t, w.ID).TotalVotes())
}

func TestNormalizer_UnknownWagerIgnored(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Normalizer.HandleCast(f.ctx, domain.VoteEvent{ParticipantID: "p1", RawToken: blue, WagerID: "not-a-wager"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonUnknownWager, d.Reason)

	d, err = f.svc.Normalizer.HandleRetract(f.ctx, domain.VoteEvent{ParticipantID: "p1", RawToken: blue, WagerID: "not-a-wager"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonUnknownWager, d.Reason)
	assert.Empty(t, f.platform.Removed())
}

func TestNormalizer_RetractWhileOpenFreesTheVote(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)

	f.react(t, w.ID, "p1", blue)

	// retirar un token que no es el aceptado no cambia nada
	d, err := f.svc.Normalizer.HandleRetract(f.ctx, domain.VoteEvent{ParticipantID: "p1", RawToken: red, WagerID: w.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNotHeld, d.Reason)
	assert.Equal(t, []int{1, 0}, f.get(t, w.ID).Counts())

	f.unreact(t, w.ID, "p1", blue)
	assert.Equal(t, []int{0, 0}, f.get(t, w.ID).Counts())

	f.react(t, w.ID, "p1", red)
	got := f.get(t, w.ID)
	assert.Equal(t, []int{0, 1}, got.Counts())
	assert.Equal(t, red, got.Ballots["p1"].Token)
}

func TestNormalizer_RetractAfterLockSendsFrozenNotice(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Who wins?", 10*time.Minute)
	f.react(t, w.ID, "p1", blue)
	f.lockAfterDeadline(t, w)

	d, err := f.svc.Normalizer.HandleRetract(f.ctx, domain.VoteEvent{ParticipantID: "p1", RawToken: blue, WagerID: w.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonFrozen, d.Reason)

	notices := f.platform.Notices("p1")
	require.Len(t, notices, 1)
	assert.Equal(t, domain.NoticeVoteFrozen, notices[0].Kind)
	assert.Equal(t, "Who wins?", notices[0].Question)

	// el voto congelado no cambia
	assert.Equal(t, []int{1, 0}, f.get(t, w.ID).Counts())

	// retirar algo que nunca contó no avisa
	d, err = f.svc.Normalizer.HandleRetract(f.ctx, domain.VoteEvent{ParticipantID: "p1", RawToken: red, WagerID: w.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNotHeld, d.Reason)
	assert.Len(t, f.platform.Notices("p1"), 1)
}

func TestNormalizer_SettledWagerExpelsMarkers(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)
	f.react(t, w.ID, "p1", blue)
	f.lockAfterDeadline(t, w)
	_, err := f.svc.Settle(f.ctx, settleReq(w.ID, "1", 6, 2))
	require.NoError(t, err)

	f.react(t, w.ID, "p2", red)
	assert.Contains(t, f.platform.Removed(), domain.Marker{ParticipantID: "p2", Token: red})
}

func TestNormalizer_OneBallotPerParticipant(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)

	rng := rand.New(rand.NewSource(42))
	participants := []string{"p1", "p2", "p3", "p4", "p5"}
	tokens := []string{blue, red, "🟢"}

	for i := 0; i < 200; i++ {
		pid := participants[rng.Intn(len(participants))]
		tok := tokens[rng.Intn(len(tokens))]
		if rng.Intn(3) == 0 {
			f.unreact(t, w.ID, pid, tok)
		} else {
			f.react(t, w.ID, pid, tok)
		}

		got := f.get(t, w.ID)
		assert.LessOrEqual(t, len(got.Ballots), len(participants))
		assert.Equal(t, len(got.Ballots), got.TotalVotes(), "counts derive from ballots")
		for pid, b := range got.Ballots {
			_, ok := got.OptionByToken(b.Token)
			assert.True(t, ok, "ballot of %s points at a real option", pid)
		}
	}
}

func TestNormalizer_ResyncRecoversMissedEvents(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)

	// p1 votó con el bot en línea; p2 y p3 mientras estaba caído
	f.react(t, w.ID, "p1", blue)
	require.NoError(t, f.platform.ReactSilently(w.ID, "p1", red))
	require.NoError(t, f.platform.ReactSilently(w.ID, "p2", red))
	require.NoError(t, f.platform.ReactSilently(w.ID, "p3", "🟢"))

	got, err := f.svc.Normalizer.Resync(f.ctx, w.ID)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1}, got.Counts())
	assert.Equal(t, blue, got.Ballots["p1"].Token, "first accepted vote survives resync")
	assert.Equal(t, red, got.Ballots["p2"].Token)
	assert.NotContains(t, got.Ballots, "p3")
	assert.ElementsMatch(t, []domain.Marker{
		{ParticipantID: "p1", Token: red},
		{ParticipantID: "p3", Token: "🟢"},
	}, f.platform.Removed())

	// idempotente
	again, err := f.svc.Normalizer.Resync(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Ballots, again.Ballots)
}

func TestNormalizer_ResyncSkipsLockedWagers(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)
	f.react(t, w.ID, "p1", blue)
	f.lockAfterDeadline(t, w)

	require.NoError(t, f.platform.ReactSilently(w.ID, "p2", red))
	got, err := f.svc.Normalizer.Resync(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, got.Counts())
}

func TestNormalizer_ResyncLeavesDueWagersToLock(t *testing.T) {
	f := newFixture(t)
	w := f.create(t, "Q", 10*time.Minute)
	f.react(t, w.ID, "p1", blue)
	f.clock.Advance(11 * time.Minute)

	before := f.get(t, w.ID)
	require.NoError(t, f.platform.ReactSilently(w.ID, "p2", red))
	got, err := f.svc.Normalizer.Resync(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateOpen, got.State)
	assert.Equal(t, []int{1, 0}, got.Counts())
	assert.Equal(t, before.Version, got.Version, "no write past the deadline")

	locked := f.lockAfterDeadline(t, w)
	assert.Equal(t, []int{1, 1}, locked.Counts(), "the lock reconciles the missed vote")
}
