package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"

	"sketchvote/core"
)

// s3Store implements both GameStore and DrawingStore on an S3 bucket:
// games/<id>, votes/<id> and drawings/<id>. A process-local mutex serializes
// the read-modify-write cycles; the store assumes a single server instance
// owns the bucket.
type s3Store struct {
	mu       sync.Mutex
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

// GameStore implementation
func (s *s3Store) GetGame(ctx context.Context, id string) (*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readGame(ctx, id)
}

func (s *s3Store) SaveGame(ctx context.Context, game *core.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, err := s.readGame(ctx, game.ID); err == nil {
		game.CreatedAt = existing.CreatedAt
	} else {
		game.CreatedAt = now
	}
	game.UpdatedAt = now

	return s.writeGame(ctx, game)
}

func (s *s3Store) ListActiveGames(ctx context.Context) ([]*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("games/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %v", err)
	}

	games := make([]*core.Game, 0, len(output.Contents))
	for _, object := range output.Contents {
		data, err := s.getObject(ctx, *object.Key)
		if err != nil {
			log.Printf("warn: failed to get object %s: %v", *object.Key, err)
			continue
		}
		var game core.Game
		if err := json.Unmarshal(data, &game); err != nil {
			log.Printf("warn: failed to unmarshal game %s: %v", *object.Key, err)
			continue
		}
		if game.Status == core.StatusResults {
			continue
		}
		games = append(games, &game)
	}
	return games, nil
}

func (s *s3Store) CastVote(ctx context.Context, gameID, voterID, submissionID string) (*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := s.readGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	votes := make(map[string]string)
	if data, err := s.getObject(ctx, "votes/"+gameID); err == nil {
		if err := json.Unmarshal(data, &votes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal votes: %v", err)
		}
	}
	if _, voted := votes[voterID]; voted {
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
	if err := s.putObject(ctx, "votes/"+gameID, votesData); err != nil {
		return nil, err
	}
	if err := s.writeGame(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}

func (s *s3Store) AddSubmission(ctx context.Context, gameID string, sub core.Submission) (*core.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := s.readGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	if sub.ID == "" {
		sub.ID = ulid.Make().String()
	}
	game.Submissions = append(game.Submissions, sub)
	game.UpdatedAt = time.Now()

	if err := s.writeGame(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}

// DrawingStore implementation
func (s *s3Store) PutDrawing(ctx context.Context, drawing *core.Drawing) (string, error) {
	if drawing.ID == "" {
		drawing.ID = ulid.Make().String()
	}
	drawing.CreatedAt = time.Now()

	data, err := json.Marshal(drawing)
	if err != nil {
		return "", fmt.Errorf("failed to marshal drawing: %v", err)
	}
	if err := s.putObject(ctx, "drawings/"+drawing.ID, data); err != nil {
		return "", fmt.Errorf("failed to upload drawing: %v", err)
	}
	return drawing.ID, nil
}

func (s *s3Store) GetDrawing(ctx context.Context, id string) (*core.Drawing, error) {
	data, err := s.getObject(ctx, "drawings/"+id)
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrDrawingNotFound
		}
		return nil, fmt.Errorf("failed to get drawing %s: %v", id, err)
	}
	var drawing core.Drawing
	if err := json.Unmarshal(data, &drawing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal drawing: %v", err)
	}
	return &drawing, nil
}

func (s *s3Store) readGame(ctx context.Context, id string) (*core.Game, error) {
	data, err := s.getObject(ctx, "games/"+id)
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game %s: %v", id, err)
	}
	var game core.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %v", err)
	}
	return &game, nil
}

func (s *s3Store) writeGame(ctx context.Context, game *core.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %v", err)
	}
	if err := s.putObject(ctx, "games/"+game.ID, data); err != nil {
		return fmt.Errorf("failed to save game %s: %v", game.ID, err)
	}
	return nil
}

func (s *s3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}
