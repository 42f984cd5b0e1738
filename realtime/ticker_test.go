package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sketchvote/core"
	"sketchvote/stores/memory"
)

type recordingPublisher struct {
	mu    sync.Mutex
	games []*core.Game
}

func (p *recordingPublisher) PublishGame(game *core.Game) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.games = append(p.games, game)
}

func (p *recordingPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.games)
}

func newTestTicker(t *testing.T, now time.Time) (*PhaseTicker, core.GameStore, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	ticker := NewPhaseTicker(store, pub)
	ticker.now = func() time.Time { return now }
	return ticker, store, pub
}

func TestSweepAdvancesDrawingToVoting(t *testing.T) {
	now := time.Now()
	ticker, store, pub := newTestTicker(t, now)
	ctx := context.Background()

	require.NoError(t, store.SaveGame(ctx, &core.Game{
		ID:           "g1",
		Status:       core.StatusDrawing,
		PhaseExpires: now.Add(-time.Second),
	}))

	ticker.Sweep(ctx)

	got, err := store.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, core.StatusVoting, got.Status)
	require.Equal(t, 45, got.Remaining(now))
	require.Equal(t, 1, pub.published())
}

func TestSweepLeavesUnexpiredPhasesAlone(t *testing.T) {
	now := time.Now()
	ticker, store, pub := newTestTicker(t, now)
	ctx := context.Background()

	require.NoError(t, store.SaveGame(ctx, &core.Game{
		ID:           "g1",
		Status:       core.StatusDrawing,
		PhaseExpires: now.Add(30 * time.Second),
	}))
	require.NoError(t, store.SaveGame(ctx, &core.Game{
		ID:     "g2",
		Status: core.StatusLobby,
	}))

	ticker.Sweep(ctx)

	got, err := store.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, core.StatusDrawing, got.Status)
	got, err = store.GetGame(ctx, "g2")
	require.NoError(t, err)
	require.Equal(t, core.StatusLobby, got.Status)
	require.Equal(t, 0, pub.published())
}

func TestSweepAdvancesExpiredVotingToResults(t *testing.T) {
	now := time.Now()
	ticker, store, pub := newTestTicker(t, now)
	ctx := context.Background()

	require.NoError(t, store.SaveGame(ctx, &core.Game{
		ID:           "g1",
		Status:       core.StatusVoting,
		PhaseExpires: now.Add(-time.Second),
		Participants: []core.Participant{{UserID: "u1"}, {UserID: "u2"}},
	}))

	ticker.Sweep(ctx)

	got, err := store.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, core.StatusResults, got.Status)
	require.True(t, got.PhaseExpires.IsZero())
	require.Equal(t, 1, pub.published())
}

func TestAllVotesInShortensVotingWindow(t *testing.T) {
	now := time.Now()
	ticker, store, _ := newTestTicker(t, now)
	ctx := context.Background()

	require.NoError(t, store.SaveGame(ctx, &core.Game{
		ID:           "g1",
		Status:       core.StatusVoting,
		PhaseExpires: now.Add(40 * time.Second),
		Participants: []core.Participant{{UserID: "u1"}, {UserID: "u2"}},
		Submissions: []core.Submission{
			{ID: "s1", UserID: "u1", Votes: 1},
			{ID: "s2", UserID: "u2", Votes: 1},
		},
	}))

	// Every vote is in, so the window collapses to the short reveal grace.
	ticker.Sweep(ctx)
	got, err := store.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, core.StatusVoting, got.Status)
	require.Equal(t, 3, got.Remaining(now))

	// Once the grace passes the game lands in results.
	ticker.now = func() time.Time { return now.Add(4 * time.Second) }
	ticker.Sweep(ctx)
	got, err = store.GetGame(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, core.StatusResults, got.Status)
}

func TestSweepIgnoresFinishedGames(t *testing.T) {
	now := time.Now()
	ticker, store, pub := newTestTicker(t, now)
	ctx := context.Background()

	require.NoError(t, store.SaveGame(ctx, &core.Game{
		ID:     "g1",
		Status: core.StatusResults,
	}))

	ticker.Sweep(ctx)
	require.Equal(t, 0, pub.published())
}
