package realtime

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"sketchvote/core"
)

const (
	defaultVoteWindow = 45 * time.Second

	// revealGrace keeps the game in the voting phase briefly after the last
	// vote lands, so clients can show the tally breakdown before the server
	// moves everyone to results.
	revealGrace = 3 * time.Second
)

// PhaseTicker is the server-authoritative phase driver. Clients only display
// countdowns; the transitions themselves happen here:
//
//	drawing → voting   when the drawing window expires
//	voting  → results  when every vote is in, or the voting window expires
//
// Every transition is persisted and broadcast as a full-record replacement.
// Publisher pushes an updated game record to its room. *Hub satisfies it;
// tests may substitute their own.
type Publisher interface {
	PublishGame(game *core.Game)
}

type PhaseTicker struct {
	store      core.GameStore
	pub        Publisher
	interval   time.Duration
	voteWindow time.Duration
	now        func() time.Time
	stop       chan struct{}
}

// NewPhaseTicker creates a ticker that scans active games once per second.
func NewPhaseTicker(store core.GameStore, pub Publisher) *PhaseTicker {
	return &PhaseTicker{
		store:      store,
		pub:        pub,
		interval:   time.Second,
		voteWindow: defaultVoteWindow,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
}

// Start runs the scan loop until Stop is called.
func (t *PhaseTicker) Start() {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Sweep(context.Background())
			case <-t.stop:
				return
			}
		}
	}()
}

// Stop terminates the scan loop.
func (t *PhaseTicker) Stop() {
	close(t.stop)
}

// Sweep advances every active game whose phase conditions are met. Exposed
// separately from the loop so it can be driven directly in tests.
func (t *PhaseTicker) Sweep(ctx context.Context) {
	games, err := t.store.ListActiveGames(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Phase sweep failed to list games")
		return
	}

	now := t.now()
	for _, game := range games {
		if !t.advance(game, now) {
			continue
		}
		if err := t.store.SaveGame(ctx, game); err != nil {
			logrus.WithError(err).WithField("game_id", game.ID).Error("Failed to persist phase transition")
			continue
		}
		if t.pub != nil {
			t.pub.PublishGame(game)
		}
		logrus.WithFields(logrus.Fields{
			"game_id": game.ID,
			"status":  game.Status,
		}).Info("Game phase advanced")
	}
}

// advance applies at most one transition and reports whether it did.
func (t *PhaseTicker) advance(game *core.Game, now time.Time) bool {
	switch game.Status {
	case core.StatusDrawing:
		if game.Remaining(now) > 0 {
			return false
		}
		game.Status = core.StatusVoting
		game.PhaseExpires = now.Add(t.voteWindow)
		return true
	case core.StatusVoting:
		if game.AllVotesIn() && game.PhaseExpires.After(now.Add(revealGrace)) {
			game.PhaseExpires = now.Add(revealGrace)
			return true
		}
		if game.Remaining(now) > 0 {
			return false
		}
		game.Status = core.StatusResults
		game.PhaseExpires = time.Time{}
		return true
	default:
		return false
	}
}
