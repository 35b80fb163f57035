package memory_test

import (
	"context"
	"testing"

	"github.com/alejandrodnm/wagerbot/internal/adapters/memory"
	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatform_ReactDispatchesAndTracksMarkers(t *testing.T) {
	ctx := context.Background()
	p := memory.NewPlatform()

	var casts, retracts []domain.VoteEvent
	p.OnVoteCast(func(_ context.Context, ev domain.VoteEvent) { casts = append(casts, ev) })
	p.OnVoteRetract(func(_ context.Context, ev domain.VoteEvent) { retracts = append(retracts, ev) })

	id, err := p.PostAnnouncement(ctx, "general", ports.Announcement{Content: "Q", Tokens: []string{"🔵"}})
	require.NoError(t, err)

	require.NoError(t, p.React(ctx, id, "p2", "🔵"))
	require.NoError(t, p.React(ctx, id, "p1", "🔵"))
	require.NoError(t, p.React(ctx, id, "p1", "🔵")) // duplicado: evento sí, marcador no
	assert.Equal(t, []string{"p1", "p2"}, p.Markers(id, "🔵"))
	assert.Len(t, casts, 3)
	assert.Equal(t, id, casts[0].WagerID)

	require.NoError(t, p.Unreact(ctx, id, "p2", "🔵"))
	assert.Equal(t, []string{"p1"}, p.Markers(id, "🔵"))
	require.Len(t, retracts, 1)
	assert.Equal(t, "p2", retracts[0].ParticipantID)

	markers, err := p.FetchVoteMarkers(ctx, "general", id)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"🔵": {"p1"}}, markers)

	assert.Error(t, p.React(ctx, "missing", "p1", "🔵"))
}

func TestPlatform_FailureFlags(t *testing.T) {
	ctx := context.Background()
	p := memory.NewPlatform()
	id, err := p.PostAnnouncement(ctx, "general", ports.Announcement{Content: "Q"})
	require.NoError(t, err)
	require.NoError(t, p.ReactSilently(id, "p1", "🔴"))

	p.FailRemovals = true
	err = p.RemoveVoteMarker(ctx, "general", id, "p1", "🔴")
	assert.True(t, domain.IsPlatform(err))
	assert.Equal(t, []string{"p1"}, p.Markers(id, "🔴"))

	p.FailRemovals = false
	require.NoError(t, p.RemoveVoteMarker(ctx, "general", id, "p1", "🔴"))
	assert.Empty(t, p.Markers(id, "🔴"))
	assert.Equal(t, []domain.Marker{{ParticipantID: "p1", Token: "🔴"}}, p.Removed())

	p.FailFetch = true
	_, err = p.FetchVoteMarkers(ctx, "general", id)
	assert.True(t, domain.IsPlatform(err))
}

func TestPlatform_EditsAndCommands(t *testing.T) {
	ctx := context.Background()
	p := memory.NewPlatform()
	id, err := p.PostAnnouncement(ctx, "general", ports.Announcement{Content: "v1"})
	require.NoError(t, err)

	require.NoError(t, p.EditAnnouncement(ctx, "general", id, ports.Announcement{Content: "v2"}))
	ann, ok := p.Announcement(id)
	require.True(t, ok)
	assert.Equal(t, "v2", ann.Content)
	assert.Equal(t, 1, ann.Edits)

	var got []ports.Command
	p.OnCommand(func(_ context.Context, cmd ports.Command) { got = append(got, cmd) })
	p.Say(ctx, "general", domain.Actor{ID: "admin"}, "!top")
	require.Len(t, got, 1)
	assert.Equal(t, "!top", got[0].Content)
	assert.NotEmpty(t, got[0].MessageID)

	require.NoError(t, p.SendMessage(ctx, "general", "hello"))
	assert.Equal(t, []memory.Message{{Venue: "general", Content: "hello"}}, p.Messages())
}
