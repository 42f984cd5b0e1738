// Package voting implements the client-side voting phase of a game: a small
// state machine (voting → waiting → revealing) kept in lockstep with the
// server-pushed game record and a countdown derived from the phase expiry.
package voting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sketchvote/core"
)

// State is the client-local view state during the voting phase.
type State string

const (
	// StateVoting is the initial state: the countdown runs and the user may
	// select and cast a vote.
	StateVoting State = "voting"
	// StateWaiting means the local vote window is over and the client waits
	// for the remaining participants' votes to be recorded server-side.
	StateWaiting State = "waiting"
	// StateRevealing exposes the per-submission vote breakdown. Navigation
	// onward is server-driven via the game status.
	StateRevealing State = "revealing"
)

var (
	ErrNoSelection  = errors.New("no submission selected")
	ErrAlreadyVoted = errors.New("vote already cast")
	ErrCastInFlight = errors.New("vote request already in flight")
	ErrVotingClosed = errors.New("voting window is closed")
)

const (
	defaultRevealDelay  = 1500 * time.Millisecond
	defaultTickInterval = time.Second
)

type (
	// Feed delivers full game-record replacements pushed by the server. The
	// channel closing signals loss of the realtime connection; the client
	// then keeps serving its last known snapshot.
	Feed interface {
		Updates() <-chan core.Game
	}

	// Caster performs the single authoritative vote-cast call.
	Caster interface {
		CastVote(ctx context.Context, gameID, submissionID string) error
	}

	// Snapshot is the read-only view handed to the UI layer.
	Snapshot struct {
		State        State
		Remaining    int
		Votable      []core.Submission
		Selected     string
		Voted        bool
		Breakdown    []core.Submission // nil until the reveal delay elapses
		ResultsReady bool              // server moved the game to results
		Err          string            // inline, dismissible
		Connected    bool
	}
)

// Option configures a Client.
type Option func(*Client)

func WithRevealDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.revealDelay = d
		}
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.tickInterval = d
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithOnChange registers a callback invoked with a fresh snapshot after
// every state change.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Client) {
		c.onChange = fn
	}
}

// Client reconciles local voting UI state with server-driven phase
// transitions. It treats the game record as read-only: the only mutation it
// ever issues is the single CastVote side-channel call.
type Client struct {
	mu           sync.Mutex
	userID       string
	feed         Feed
	caster       Caster
	revealDelay  time.Duration
	tickInterval time.Duration
	now          func() time.Time
	onChange     func(Snapshot)
	log          *logrus.Entry

	game         core.Game // last known server record
	state        State
	selected     string
	voted        bool
	inFlight     bool
	breakdown    bool
	resultsReady bool
	lastErr      string
	connected    bool

	revealTimer *time.Timer
	done        chan struct{}
	closeOnce   sync.Once
}

// NewClient creates a voting client for userID seeded with the game record
// current at mount time.
func NewClient(userID string, game core.Game, feed Feed, caster Caster, opts ...Option) *Client {
	c := &Client{
		userID:       userID,
		feed:         feed,
		caster:       caster,
		revealDelay:  defaultRevealDelay,
		tickInterval: defaultTickInterval,
		now:          time.Now,
		log:          logrus.WithFields(logrus.Fields{"component": "voting", "game_id": game.ID}),
		game:         *game.Clone(),
		state:        StateVoting,
		connected:    true,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes feed updates and drives the countdown until the client is
// closed or ctx is cancelled. It is meant to be run as a goroutine.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	updates := c.feed.Updates()
	for {
		select {
		case game, ok := <-updates:
			if !ok {
				// Realtime feed lost: keep the last known snapshot and
				// surface a connectivity warning instead of freezing.
				c.mu.Lock()
				c.connected = false
				c.mu.Unlock()
				c.notify()
				updates = nil
				continue
			}
			c.apply(game)
		case <-ticker.C:
			c.Tick(ctx)
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		}
	}
}

// Tick advances the countdown. Remaining time is always recomputed from the
// expiry timestamp; when it hits zero the vote window closes: a pending
// selection is auto-cast, and the client moves to waiting either way.
func (c *Client) Tick(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateVoting || c.game.Remaining(c.now()) > 0 {
		c.mu.Unlock()
		return
	}
	autoCast := c.selected != "" && !c.voted && !c.inFlight
	c.state = StateWaiting
	c.mu.Unlock()

	if autoCast {
		if err := c.CastVote(ctx); err != nil {
			c.log.WithError(err).Warn("Auto-cast at countdown expiry failed")
		}
	}
	c.maybeReveal()
	c.notify()
}

// Select marks a submission as the vote candidate. The local user's own
// submission is never selectable.
func (c *Client) Select(submissionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateVoting {
		return ErrVotingClosed
	}
	if c.voted {
		return ErrAlreadyVoted
	}
	for _, sub := range c.game.Submissions {
		if sub.ID != submissionID {
			continue
		}
		if sub.UserID == c.userID {
			return core.ErrOwnSubmission
		}
		c.selected = submissionID
		return nil
	}
	return core.ErrUnknownSubmission
}

// CastVote issues the single vote-cast call for the current selection.
// Exactly one network call is made per voting phase: repeat calls, calls with
// no selection, and calls while a request is in flight are all rejected
// without touching the network. A failed call surfaces an inline error and
// leaves the machine in its pre-failure state so the user can retry.
func (c *Client) CastVote(ctx context.Context) error {
	c.mu.Lock()
	if c.voted {
		c.mu.Unlock()
		return ErrAlreadyVoted
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrCastInFlight
	}
	if c.selected == "" {
		c.mu.Unlock()
		return ErrNoSelection
	}
	c.inFlight = true
	gameID, submissionID := c.game.ID, c.selected
	c.mu.Unlock()

	err := c.caster.CastVote(ctx, gameID, submissionID)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.lastErr = "Your vote could not be submitted. Please try again."
		c.mu.Unlock()
		c.log.WithError(err).Warn("Vote cast failed")
		c.notify()
		return err
	}
	c.voted = true
	if c.state == StateVoting {
		c.state = StateWaiting
	}
	c.mu.Unlock()

	c.maybeReveal()
	c.notify()
	return nil
}

// DismissError clears the inline error message.
func (c *Client) DismissError() {
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()
	c.notify()
}

// Snapshot returns the current view state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close tears the client down, cancelling the reveal timer so nothing
// updates state after unmount. In-flight vote casts are not cancelled; once
// sent, a vote is final.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.revealTimer != nil {
			c.revealTimer.Stop()
			c.revealTimer = nil
		}
		c.mu.Unlock()
		close(c.done)
	})
}

// apply ingests a server-pushed record as a full replacement of the cached
// copy. Vote tallies and phase completion are always derived from this
// record, never from local counters.
func (c *Client) apply(game core.Game) {
	c.mu.Lock()
	c.game = *game.Clone()
	c.connected = true
	if game.Status == core.StatusResults {
		// Server-authoritative exit from the voting phase.
		c.resultsReady = true
	}
	c.mu.Unlock()

	c.maybeReveal()
	c.notify()
}

// maybeReveal transitions waiting → revealing once the authoritative tallies
// show every participant's vote has been recorded, and schedules the
// breakdown view after a short fixed delay.
func (c *Client) maybeReveal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateWaiting || !c.game.AllVotesIn() {
		return
	}
	c.state = StateRevealing
	if c.revealDelay == 0 {
		c.breakdown = true
		return
	}
	c.revealTimer = time.AfterFunc(c.revealDelay, func() {
		select {
		case <-c.done:
			return
		default:
		}
		c.mu.Lock()
		c.breakdown = true
		c.mu.Unlock()
		c.notify()
	})
}

func (c *Client) notify() {
	if c.onChange == nil {
		return
	}
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.onChange(snap)
}

func (c *Client) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        c.state,
		Remaining:    c.game.Remaining(c.now()),
		Votable:      c.game.VotableBy(c.userID),
		Selected:     c.selected,
		Voted:        c.voted,
		ResultsReady: c.resultsReady,
		Err:          c.lastErr,
		Connected:    c.connected,
	}
	if c.breakdown {
		snap.Breakdown = append([]core.Submission(nil), c.game.Submissions...)
	}
	return snap
}
