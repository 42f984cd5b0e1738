package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sketchvote/core"
)

func seedGame(t *testing.T, s *memStore) *core.Game {
	t.Helper()
	game := &core.Game{
		ID:     "g1",
		Status: core.StatusVoting,
		Participants: []core.Participant{
			{UserID: "u1"},
			{UserID: "u2"},
		},
		Submissions: []core.Submission{
			{ID: "s1", UserID: "u1"},
			{ID: "s2", UserID: "u2"},
		},
	}
	require.NoError(t, s.SaveGame(context.Background(), game))
	return game
}

func TestSaveAndGetGame(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedGame(t, s)

	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "g1", got.ID)
	require.False(t, got.CreatedAt.IsZero())

	// The returned record is a copy; mutating it must not touch the store.
	got.Submissions[0].Votes = 99
	again, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, 0, again.Submissions[0].Votes)

	_, err = s.GetGame(ctx, "missing")
	require.ErrorIs(t, err, core.ErrGameNotFound)
}

func TestSaveGamePreservesCreatedAt(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	game := seedGame(t, s)

	created := game.CreatedAt
	game.Status = core.StatusResults
	require.NoError(t, s.SaveGame(ctx, game))

	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, created, got.CreatedAt)
	require.Equal(t, core.StatusResults, got.Status)
}

func TestCastVoteOncePerVoter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedGame(t, s)

	game, err := s.CastVote(ctx, "g1", "u1", "s2")
	require.NoError(t, err)
	require.Equal(t, 1, game.Submissions[1].Votes)

	// A second vote from the same voter is rejected and changes nothing,
	// even for a different submission.
	_, err = s.CastVote(ctx, "g1", "u1", "s2")
	require.ErrorIs(t, err, core.ErrAlreadyVoted)
	_, err = s.CastVote(ctx, "g1", "u1", "s1")
	require.ErrorIs(t, err, core.ErrAlreadyVoted)

	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, 1, got.VotesIn())
}

func TestCastVoteValidation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedGame(t, s)

	_, err := s.CastVote(ctx, "missing", "u1", "s2")
	require.ErrorIs(t, err, core.ErrGameNotFound)

	_, err = s.CastVote(ctx, "g1", "u1", "s1")
	require.ErrorIs(t, err, core.ErrOwnSubmission)

	_, err = s.CastVote(ctx, "g1", "u1", "missing")
	require.ErrorIs(t, err, core.ErrUnknownSubmission)

	// Failed attempts must not consume the voter's single vote.
	_, err = s.CastVote(ctx, "g1", "u1", "s2")
	require.NoError(t, err)
}

func TestAddSubmissionAssignsID(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedGame(t, s)

	game, err := s.AddSubmission(ctx, "g1", core.Submission{UserID: "u3", DrawingURL: "/api/v1/drawings/d3"})
	require.NoError(t, err)
	require.Len(t, game.Submissions, 3)
	require.NotEmpty(t, game.Submissions[2].ID)

	_, err = s.AddSubmission(ctx, "missing", core.Submission{UserID: "u3"})
	require.ErrorIs(t, err, core.ErrGameNotFound)
}

func TestListActiveGamesSkipsResults(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.SaveGame(ctx, &core.Game{ID: "g1", Status: core.StatusDrawing}))
	require.NoError(t, s.SaveGame(ctx, &core.Game{ID: "g2", Status: core.StatusVoting}))
	require.NoError(t, s.SaveGame(ctx, &core.Game{ID: "g3", Status: core.StatusResults}))

	games, err := s.ListActiveGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 2)
	for _, g := range games {
		require.NotEqual(t, core.StatusResults, g.Status)
	}
}

func TestPutAndGetDrawing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	id, err := s.PutDrawing(ctx, &core.Drawing{
		GameID: "g1",
		UserID: "u1",
		Image:  []byte{0x89, 0x50, 0x4e, 0x47},
		Width:  800,
		Height: 600,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetDrawing(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, got.Image)
	require.Equal(t, 800, got.Width)

	// Stored bytes are isolated from the caller's slice.
	got.Image[0] = 0
	again, err := s.GetDrawing(ctx, id)
	require.NoError(t, err)
	require.Equal(t, byte(0x89), again.Image[0])

	_, err = s.GetDrawing(ctx, "missing")
	require.ErrorIs(t, err, core.ErrDrawingNotFound)
}
