package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"sketchvote/core"
)

// fsStore implements both GameStore and DrawingStore on a local directory:
// games/<id>.json, votes/<id>.json and drawings/<id>.json under the base
// path. A single mutex serializes read-modify-write cycles.
type fsStore struct {
	mu       sync.Mutex
	basePath string
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"games", "votes", "drawings"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create %s directory: %v", dir, err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) gamePath(id string) string {
	return filepath.Join(s.basePath, "games", id+".json")
}

func (s *fsStore) votesPath(id string) string {
	return filepath.Join(s.basePath, "votes", id+".json")
}

func (s *fsStore) drawingPath(id string) string {
	return filepath.Join(s.basePath, "drawings", id+".json")
}

// GameStore implementation
func (s *fsStore) GetGame(ctx context.Context, id string) (*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readGame(id)
}

func (s *fsStore) SaveGame(ctx context.Context, game *core.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, err := s.readGame(game.ID); err == nil {
		game.CreatedAt = existing.CreatedAt
	} else {
		game.CreatedAt = now
	}
	game.UpdatedAt = now

	return s.writeGame(game)
}

func (s *fsStore) ListActiveGames(ctx context.Context) ([]*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.basePath, "games"))
	if err != nil {
		return nil, err
	}

	var games []*core.Game
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		game, err := s.readGame(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			logrus.WithError(err).WithField("file", entry.Name()).Warn("Skipping unreadable game file")
			continue
		}
		if game.Status == core.StatusResults {
			continue
		}
		games = append(games, game)
	}
	return games, nil
}

func (s *fsStore) CastVote(ctx context.Context, gameID, voterID, submissionID string) (*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"game_id": gameID, "voter_id": voterID})

	game, err := s.readGame(gameID)
	if err != nil {
		return nil, err
	}

	votes := make(map[string]string)
	if data, err := os.ReadFile(s.votesPath(gameID)); err == nil {
		if err := json.Unmarshal(data, &votes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal votes: %w", err)
		}
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

	votesData, err := json.Marshal(votes)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.votesPath(gameID), votesData, 0644); err != nil {
		return nil, err
	}
	if err := s.writeGame(game); err != nil {
		return nil, err
	}

	log.WithField("submission_id", submissionID).Info("Vote recorded")
	return game, nil
}

func (s *fsStore) AddSubmission(ctx context.Context, gameID string, sub core.Submission) (*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := s.readGame(gameID)
	if err != nil {
		return nil, err
	}

	if sub.ID == "" {
		sub.ID = ulid.Make().String()
	}
	game.Submissions = append(game.Submissions, sub)
	game.UpdatedAt = time.Now()

	if err := s.writeGame(game); err != nil {
		return nil, err
	}
	return game, nil
}

// DrawingStore implementation
func (s *fsStore) PutDrawing(ctx context.Context, drawing *core.Drawing) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if drawing.ID == "" {
		drawing.ID = ulid.Make().String()
	}
	drawing.CreatedAt = time.Now()

	data, err := json.Marshal(drawing)
	if err != nil {
		return "", fmt.Errorf("failed to marshal drawing: %w", err)
	}
	if err := os.WriteFile(s.drawingPath(drawing.ID), data, 0644); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"drawing_id": drawing.ID,
		"image_size": len(drawing.Image),
	}).Info("Drawing stored")
	return drawing.ID, nil
}

func (s *fsStore) GetDrawing(ctx context.Context, id string) (*core.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.drawingPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrDrawingNotFound
		}
		return nil, err
	}
	var drawing core.Drawing
	if err := json.Unmarshal(data, &drawing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal drawing: %w", err)
	}
	return &drawing, nil
}

func (s *fsStore) readGame(id string) (*core.Game, error) {
	data, err := os.ReadFile(s.gamePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrGameNotFound
		}
		return nil, err
	}
	var game core.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}
	return &game, nil
}

func (s *fsStore) writeGame(game *core.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}
	return os.WriteFile(s.gamePath(game.ID), data, 0644)
}
