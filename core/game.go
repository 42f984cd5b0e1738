package core

import (
	"context"
	"errors"
	"time"
)

// Status is the server-owned phase of a game. Clients never set it directly;
// transitions are driven by the phase scheduler and broadcast over the
// realtime channel.
type Status string

const (
	StatusLobby   Status = "lobby"
	StatusDrawing Status = "drawing"
	StatusVoting  Status = "voting"
	StatusResults Status = "results"
)

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrAlreadyVoted      = errors.New("vote already cast for this game")
	ErrOwnSubmission     = errors.New("cannot vote for own submission")
	ErrUnknownSubmission = errors.New("submission not found in game")
)

type (
	// Participant is one player in a game session.
	Participant struct {
		UserID    string `json:"userId"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatarUrl,omitempty"`
		Ready     bool   `json:"ready"`
	}

	// Submission is a finished drawing entered into the voting round.
	// Votes is the server-side tally; clients read it, never increment it.
	Submission struct {
		ID         string `json:"id"`
		UserID     string `json:"userId"`
		DrawingURL string `json:"drawingUrl"`
		Votes      int    `json:"votes"`
	}

	// Game is the full session record. The server owns it; connected clients
	// receive it as a whole-record replacement on every change.
	Game struct {
		ID           string        `json:"id"`
		Status       Status        `json:"status"`
		Prompt       string        `json:"prompt"`
		Participants []Participant `json:"participants"`
		Submissions  []Submission  `json:"submissions"`
		PhaseExpires time.Time     `json:"phaseExpiresAt"`
		CreatedAt    time.Time     `json:"createdAt"`
		UpdatedAt    time.Time     `json:"updatedAt"`
	}

	// GameStore defines the persistence layer for game sessions.
	GameStore interface {
		// GetGame returns the full record for one game.
		GetGame(ctx context.Context, id string) (*Game, error)

		// SaveGame creates or replaces a game record.
		SaveGame(ctx context.Context, game *Game) error

		// ListActiveGames returns every game not yet in the results phase.
		// Used by the phase scheduler.
		ListActiveGames(ctx context.Context) ([]*Game, error)

		// CastVote records exactly one vote per voter per game and returns
		// the updated record. A second vote from the same voter fails with
		// ErrAlreadyVoted and leaves the tally unchanged.
		CastVote(ctx context.Context, gameID, voterID, submissionID string) (*Game, error)

		// AddSubmission appends a submission to the game and returns the
		// updated record.
		AddSubmission(ctx context.Context, gameID string, sub Submission) (*Game, error)
	}
)

// Remaining derives the seconds left in the current phase from the expiry
// timestamp. It is recomputed on every tick rather than decremented, so all
// clients agree with the server regardless of when they joined.
func (g *Game) Remaining(now time.Time) int {
	if g.PhaseExpires.IsZero() {
		return 0
	}
	secs := int(g.PhaseExpires.Sub(now) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// VotesIn is the sum of all submission tallies.
func (g *Game) VotesIn() int {
	total := 0
	for _, sub := range g.Submissions {
		total += sub.Votes
	}
	return total
}

// AllVotesIn reports whether every participant's vote has been recorded,
// derived from the authoritative submission tallies rather than any local
// counter.
func (g *Game) AllVotesIn() bool {
	if len(g.Participants) == 0 {
		return false
	}
	return g.VotesIn() >= len(g.Participants)
}

// VotableBy returns the submissions userID may vote on. A participant's own
// submission is never votable.
func (g *Game) VotableBy(userID string) []Submission {
	votable := make([]Submission, 0, len(g.Submissions))
	for _, sub := range g.Submissions {
		if sub.UserID != userID {
			votable = append(votable, sub)
		}
	}
	return votable
}

// SubmissionOf returns the submission owned by userID, or nil.
func (g *Game) SubmissionOf(userID string) *Submission {
	for i := range g.Submissions {
		if g.Submissions[i].UserID == userID {
			return &g.Submissions[i]
		}
	}
	return nil
}

// RegisterVote increments the tally for submissionID after validating that
// the voter is not its owner. Vote uniqueness is enforced by the store, not
// here.
func (g *Game) RegisterVote(voterID, submissionID string) error {
	for i := range g.Submissions {
		if g.Submissions[i].ID != submissionID {
			continue
		}
		if g.Submissions[i].UserID == voterID {
			return ErrOwnSubmission
		}
		g.Submissions[i].Votes++
		return nil
	}
	return ErrUnknownSubmission
}

// Clone returns a deep copy so cached records can be handed out without
// letting callers mutate the stored one.
func (g *Game) Clone() *Game {
	cp := *g
	cp.Participants = append([]Participant(nil), g.Participants...)
	cp.Submissions = append([]Submission(nil), g.Submissions...)
	return &cp
}
