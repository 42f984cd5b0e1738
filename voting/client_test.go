package voting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sketchvote/core"
)

// fakeCaster counts vote-cast calls and can be told to fail or stall.
type fakeCaster struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration

	gameID       string
	submissionID string
}

func (f *fakeCaster) CastVote(ctx context.Context, gameID, submissionID string) error {
	f.mu.Lock()
	f.calls++
	f.gameID = gameID
	f.submissionID = submissionID
	err := f.err
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *fakeCaster) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testGame(expiry time.Time) core.Game {
	return core.Game{
		ID:     "g1",
		Status: core.StatusVoting,
		Prompt: "a cat playing chess",
		Participants: []core.Participant{
			{UserID: "u1", Name: "Ann"},
			{UserID: "u2", Name: "Ben"},
			{UserID: "u3", Name: "Cam"},
		},
		Submissions: []core.Submission{
			{ID: "s1", UserID: "u1"},
			{ID: "s2", UserID: "u2"},
			{ID: "s3", UserID: "u3"},
		},
		PhaseExpires: expiry,
	}
}

func TestVotableExcludesOwnSubmission(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	c := NewClient("u1", game, NewChannelFeed(1), &fakeCaster{})
	defer c.Close()

	snap := c.Snapshot()
	require.Len(t, snap.Votable, 2)
	for _, sub := range snap.Votable {
		require.NotEqual(t, "u1", sub.UserID)
	}

	require.ErrorIs(t, c.Select("s1"), core.ErrOwnSubmission)
	require.ErrorIs(t, c.Select("nope"), core.ErrUnknownSubmission)
	require.NoError(t, c.Select("s2"))
	require.Equal(t, "s2", c.Snapshot().Selected)
}

func TestCountdownDerivedFromExpiry(t *testing.T) {
	base := time.Now()
	game := testGame(base.Add(45 * time.Second))

	now := base
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	c := NewClient("u1", game, NewChannelFeed(1), &fakeCaster{}, WithClock(clock))
	defer c.Close()

	require.Equal(t, 45, c.Snapshot().Remaining)

	mu.Lock()
	now = base.Add(10 * time.Second)
	mu.Unlock()
	require.Equal(t, 35, c.Snapshot().Remaining)

	mu.Lock()
	now = base.Add(2 * time.Minute)
	mu.Unlock()
	require.Equal(t, 0, c.Snapshot().Remaining)
}

func TestCastVoteSucceeds(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	caster := &fakeCaster{}
	c := NewClient("u1", game, NewChannelFeed(1), caster)
	defer c.Close()

	require.NoError(t, c.Select("s2"))
	require.NoError(t, c.CastVote(context.Background()))

	require.Equal(t, 1, caster.callCount())
	require.Equal(t, "g1", caster.gameID)
	require.Equal(t, "s2", caster.submissionID)

	snap := c.Snapshot()
	require.True(t, snap.Voted)
	require.Equal(t, StateWaiting, snap.State)

	require.ErrorIs(t, c.CastVote(context.Background()), ErrAlreadyVoted)
	require.Equal(t, 1, caster.callCount())
}

func TestCastVoteWithoutSelection(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	caster := &fakeCaster{}
	c := NewClient("u1", game, NewChannelFeed(1), caster)
	defer c.Close()

	require.ErrorIs(t, c.CastVote(context.Background()), ErrNoSelection)
	require.Equal(t, 0, caster.callCount())
}

func TestConcurrentCastsMakeOneNetworkCall(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	caster := &fakeCaster{delay: 20 * time.Millisecond}
	c := NewClient("u1", game, NewChannelFeed(1), caster)
	defer c.Close()

	require.NoError(t, c.Select("s2"))

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.CastVote(context.Background())
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, caster.callCount())
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, ErrCastInFlight) || errors.Is(err, ErrAlreadyVoted))
	}
	require.Equal(t, 1, succeeded)
}

func TestFailedCastStaysInVotingWithInlineError(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	caster := &fakeCaster{err: errors.New("network down")}
	c := NewClient("u1", game, NewChannelFeed(1), caster)
	defer c.Close()

	require.NoError(t, c.Select("s2"))
	require.Error(t, c.CastVote(context.Background()))

	snap := c.Snapshot()
	require.Equal(t, StateVoting, snap.State)
	require.False(t, snap.Voted)
	require.NotEmpty(t, snap.Err)
	require.Equal(t, "s2", snap.Selected)

	c.DismissError()
	require.Empty(t, c.Snapshot().Err)

	// The retry goes through once the network recovers.
	caster.mu.Lock()
	caster.err = nil
	caster.mu.Unlock()
	require.NoError(t, c.CastVote(context.Background()))
	require.Equal(t, 2, caster.callCount())
	require.Equal(t, StateWaiting, c.Snapshot().State)
}

func TestExpiryAutoCastsSelection(t *testing.T) {
	base := time.Now()
	game := testGame(base.Add(45 * time.Second))
	caster := &fakeCaster{}

	now := base
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	c := NewClient("u1", game, NewChannelFeed(1), caster, WithClock(clock), WithRevealDelay(0))
	defer c.Close()

	require.NoError(t, c.Select("s2"))

	c.Tick(context.Background())
	require.Equal(t, StateVoting, c.Snapshot().State)
	require.Equal(t, 0, caster.callCount())

	mu.Lock()
	now = base.Add(46 * time.Second)
	mu.Unlock()

	c.Tick(context.Background())
	require.Equal(t, 1, caster.callCount())
	require.Equal(t, "s2", caster.submissionID)
	require.Equal(t, StateWaiting, c.Snapshot().State)
	require.True(t, c.Snapshot().Voted)
}

func TestExpiryWithoutSelectionJustCloses(t *testing.T) {
	game := testGame(time.Now().Add(-time.Second))
	caster := &fakeCaster{}
	c := NewClient("u1", game, NewChannelFeed(1), caster)
	defer c.Close()

	c.Tick(context.Background())
	require.Equal(t, 0, caster.callCount())
	snap := c.Snapshot()
	require.Equal(t, StateWaiting, snap.State)
	require.False(t, snap.Voted)
}

func TestRevealWhenAllVotesIn(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	caster := &fakeCaster{}
	feed := NewChannelFeed(4)
	c := NewClient("u1", game, feed, caster, WithRevealDelay(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	require.NoError(t, c.Select("s2"))
	require.NoError(t, c.CastVote(context.Background()))
	require.Equal(t, StateWaiting, c.Snapshot().State)

	// Two of three votes in: still waiting.
	partial := testGame(game.PhaseExpires)
	partial.Submissions[1].Votes = 1
	partial.Submissions[2].Votes = 1
	feed.Push(partial)
	require.Eventually(t, func() bool { return c.Snapshot().Votable[0].Votes == 1 },
		time.Second, 5*time.Millisecond)
	require.Equal(t, StateWaiting, c.Snapshot().State)

	// Third vote lands: the tally sum reaches the participant count.
	full := testGame(game.PhaseExpires)
	full.Submissions[0].Votes = 1
	full.Submissions[1].Votes = 1
	full.Submissions[2].Votes = 1
	feed.Push(full)

	require.Eventually(t, func() bool { return c.Snapshot().State == StateRevealing },
		time.Second, 5*time.Millisecond)
	snap := c.Snapshot()
	require.Len(t, snap.Breakdown, 3)
	for _, sub := range snap.Breakdown {
		require.Equal(t, 1, sub.Votes)
	}
}

func TestRevealDelayGatesBreakdown(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	game.Submissions[0].Votes = 1
	game.Submissions[1].Votes = 2
	caster := &fakeCaster{}
	c := NewClient("u1", game, NewChannelFeed(1), caster, WithRevealDelay(40*time.Millisecond))
	defer c.Close()

	require.NoError(t, c.Select("s2"))
	require.NoError(t, c.CastVote(context.Background()))

	snap := c.Snapshot()
	require.Equal(t, StateRevealing, snap.State)
	require.Nil(t, snap.Breakdown)

	require.Eventually(t, func() bool { return c.Snapshot().Breakdown != nil },
		time.Second, 5*time.Millisecond)
}

func TestCloseCancelsRevealTimer(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	game.Submissions[0].Votes = 1
	game.Submissions[1].Votes = 2
	caster := &fakeCaster{}
	c := NewClient("u1", game, NewChannelFeed(1), caster, WithRevealDelay(30*time.Millisecond))

	require.NoError(t, c.Select("s2"))
	require.NoError(t, c.CastVote(context.Background()))
	require.Equal(t, StateRevealing, c.Snapshot().State)

	c.Close()
	time.Sleep(80 * time.Millisecond)
	require.Nil(t, c.Snapshot().Breakdown)
}

func TestFeedLossKeepsLastSnapshot(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	feed := NewChannelFeed(4)
	c := NewClient("u1", game, feed, &fakeCaster{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	updated := testGame(game.PhaseExpires)
	updated.Submissions[1].Votes = 1
	feed.Push(updated)
	require.Eventually(t, func() bool { return c.Snapshot().Votable[0].Votes == 1 },
		time.Second, 5*time.Millisecond)

	feed.Close()
	require.Eventually(t, func() bool { return !c.Snapshot().Connected },
		time.Second, 5*time.Millisecond)

	// The last known record is still served.
	snap := c.Snapshot()
	require.Len(t, snap.Votable, 2)
	require.Equal(t, 1, snap.Votable[0].Votes)
}

func TestServerResultsTransition(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	feed := NewChannelFeed(4)
	c := NewClient("u1", game, feed, &fakeCaster{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Close()

	final := testGame(time.Time{})
	final.Status = core.StatusResults
	feed.Push(final)

	require.Eventually(t, func() bool { return c.Snapshot().ResultsReady },
		time.Second, 5*time.Millisecond)
}

func TestSelectAfterVoteRejected(t *testing.T) {
	game := testGame(time.Now().Add(45 * time.Second))
	c := NewClient("u1", game, NewChannelFeed(1), &fakeCaster{})
	defer c.Close()

	require.NoError(t, c.Select("s2"))
	require.NoError(t, c.CastVote(context.Background()))
	require.ErrorIs(t, c.Select("s3"), ErrVotingClosed)
}
