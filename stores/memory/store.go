package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"sketchvote/core"
)

// memStore implements both GameStore and DrawingStore for in-memory storage.
type memStore struct {
	mu       sync.RWMutex
	games    map[string]*core.Game
	voters   map[string]map[string]string // gameID -> voterID -> submissionID
	drawings map[string]*core.Drawing
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		games:    make(map[string]*core.Game),
		voters:   make(map[string]map[string]string),
		drawings: make(map[string]*core.Drawing),
	}
}

// GetGame retrieves a game by its ID. Part of the GameStore interface.
func (s *memStore) GetGame(ctx context.Context, id string) (*core.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	game, ok := s.games[id]
	if !ok {
		logrus.WithField("game_id", id).Warn("Game with specified ID not found")
		return nil, core.ErrGameNotFound
	}
	return game.Clone(), nil
}

// SaveGame creates or replaces a game record. Part of the GameStore interface.
func (s *memStore) SaveGame(ctx context.Context, game *core.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.games[game.ID]; ok {
		game.CreatedAt = existing.CreatedAt
	} else {
		game.CreatedAt = now
	}
	game.UpdatedAt = now

	s.games[game.ID] = game.Clone()
	logrus.WithFields(logrus.Fields{"game_id": game.ID, "status": game.Status}).Info("Game saved")
	return nil
}

// ListActiveGames returns every game not yet in the results phase.
func (s *memStore) ListActiveGames(ctx context.Context) ([]*core.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	games := make([]*core.Game, 0, len(s.games))
	for _, game := range s.games {
		if game.Status == core.StatusResults {
			continue
		}
		games = append(games, game.Clone())
	}
	return games, nil
}

// CastVote records exactly one vote per voter per game. Part of the
// GameStore interface.
func (s *memStore) CastVote(ctx context.Context, gameID, voterID, submissionID string) (*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"game_id": gameID, "voter_id": voterID})

	game, ok := s.games[gameID]
	if !ok {
		log.Warn("Vote for unknown game")
		return nil, core.ErrGameNotFound
	}

	votes, ok := s.voters[gameID]
	if !ok {
		votes = make(map[string]string)
		s.voters[gameID] = votes
	}
	if _, voted := votes[voterID]; voted {
		log.Warn("Duplicate vote rejected")
		return nil, core.ErrAlreadyVoted
	}

	if err := game.RegisterVote(voterID, submissionID); err != nil {
		return nil, err
	}
	votes[voterID] = submissionID
	game.UpdatedAt = time.Now()

	log.WithField("submission_id", submissionID).Info("Vote recorded")
	return game.Clone(), nil
}

// AddSubmission appends a submission to the game. Part of the GameStore
// interface.
func (s *memStore) AddSubmission(ctx context.Context, gameID string, sub core.Submission) (*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[gameID]
	if !ok {
		return nil, core.ErrGameNotFound
	}

	if sub.ID == "" {
		sub.ID = ulid.Make().String()
	}
	game.Submissions = append(game.Submissions, sub)
	game.UpdatedAt = time.Now()

	logrus.WithFields(logrus.Fields{
		"game_id":       gameID,
		"submission_id": sub.ID,
		"user_id":       sub.UserID,
	}).Info("Submission added")
	return game.Clone(), nil
}

// PutDrawing stores an exported drawing. Part of the DrawingStore interface.
func (s *memStore) PutDrawing(ctx context.Context, drawing *core.Drawing) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if drawing.ID == "" {
		drawing.ID = ulid.Make().String()
	}
	drawing.CreatedAt = time.Now()

	cp := *drawing
	cp.Image = append([]byte(nil), drawing.Image...)
	s.drawings[drawing.ID] = &cp

	logrus.WithFields(logrus.Fields{
		"drawing_id": drawing.ID,
		"image_size": len(drawing.Image),
	}).Info("Drawing stored")
	return drawing.ID, nil
}

// GetDrawing retrieves a drawing by its ID. Part of the DrawingStore
// interface.
func (s *memStore) GetDrawing(ctx context.Context, id string) (*core.Drawing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drawing, ok := s.drawings[id]
	if !ok {
		logrus.WithField("drawing_id", id).Warn("Drawing with specified ID not found")
		return nil, core.ErrDrawingNotFound
	}
	cp := *drawing
	cp.Image = append([]byte(nil), drawing.Image...)
	return &cp, nil
}
