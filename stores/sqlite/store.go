package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"sketchvote/core"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	// Game records are stored as JSON blobs; the status column is kept
	// alongside so the phase scheduler can filter without decoding.
	gamesTableStmt := `
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	);`
	if _, err = db.Exec(gamesTableStmt); err != nil {
		log.Fatalf("failed to create games table: %v", err)
	}

	// The primary key enforces one vote per voter per game.
	votesTableStmt := `
	CREATE TABLE IF NOT EXISTS votes (
		game_id TEXT NOT NULL,
		voter_id TEXT NOT NULL,
		submission_id TEXT NOT NULL,
		created_at DATETIME,
		PRIMARY KEY (game_id, voter_id)
	);`
	if _, err = db.Exec(votesTableStmt); err != nil {
		log.Fatalf("failed to create votes table: %v", err)
	}

	drawingsTableStmt := `
	CREATE TABLE IF NOT EXISTS drawings (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		image BLOB NOT NULL,
		width INTEGER,
		height INTEGER,
		element_count INTEGER,
		elapsed_seconds INTEGER,
		created_at DATETIME
	);`
	if _, err = db.Exec(drawingsTableStmt); err != nil {
		log.Fatalf("failed to create drawings table: %v", err)
	}

	return &sqliteStore{db}
}

// GameStore implementation
func (s *sqliteStore) GetGame(ctx context.Context, id string) (*core.Game, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM games WHERE id = ?", id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			logrus.WithField("game_id", id).Warn("Game with specified ID not found")
			return nil, core.ErrGameNotFound
		}
		return nil, err
	}
	return decodeGame(data)
}

func (s *sqliteStore) SaveGame(ctx context.Context, game *core.Game) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // Rollback on any error

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM games WHERE id = ?", game.ID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	now := time.Now()
	if exists {
		game.UpdatedAt = now
	} else {
		game.CreatedAt = now
		game.UpdatedAt = now
	}

	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}

	if exists {
		_, err = tx.ExecContext(ctx, "UPDATE games SET status = ?, data = ?, updated_at = ? WHERE id = ?",
			game.Status, data, now, game.ID)
	} else {
		_, err = tx.ExecContext(ctx, "INSERT INTO games (id, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			game.ID, game.Status, data, now, now)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqliteStore) ListActiveGames(ctx context.Context) ([]*core.Game, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM games WHERE status != ?", core.StatusResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*core.Game
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		game, err := decodeGame(data)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

func (s *sqliteStore) CastVote(ctx context.Context, gameID, voterID, submissionID string) (*core.Game, error) {
	log := logrus.WithFields(logrus.Fields{"game_id": gameID, "voter_id": voterID})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var data []byte
	err = tx.QueryRowContext(ctx, "SELECT data FROM games WHERE id = ?", gameID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrGameNotFound
		}
		return nil, err
	}
	game, err := decodeGame(data)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO votes (game_id, voter_id, submission_id, created_at) VALUES (?, ?, ?, ?)",
		gameID, voterID, submissionID, time.Now())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "PRIMARY") {
			log.Warn("Duplicate vote rejected")
			return nil, core.ErrAlreadyVoted
		}
		return nil, err
	}

	if err := game.RegisterVote(voterID, submissionID); err != nil {
		return nil, err
	}
	game.UpdatedAt = time.Now()

	updated, err := json.Marshal(game)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE games SET data = ?, updated_at = ? WHERE id = ?",
		updated, game.UpdatedAt, gameID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	log.WithField("submission_id", submissionID).Info("Vote recorded")
	return game, nil
}

func (s *sqliteStore) AddSubmission(ctx context.Context, gameID string, sub core.Submission) (*core.Game, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var data []byte
	err = tx.QueryRowContext(ctx, "SELECT data FROM games WHERE id = ?", gameID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrGameNotFound
		}
		return nil, err
	}
	game, err := decodeGame(data)
	if err != nil {
		return nil, err
	}

	if sub.ID == "" {
		sub.ID = ulid.Make().String()
	}
	game.Submissions = append(game.Submissions, sub)
	game.UpdatedAt = time.Now()

	updated, err := json.Marshal(game)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE games SET data = ?, updated_at = ? WHERE id = ?",
		updated, game.UpdatedAt, gameID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return game, nil
}

// DrawingStore implementation
func (s *sqliteStore) PutDrawing(ctx context.Context, drawing *core.Drawing) (string, error) {
	if drawing.ID == "" {
		drawing.ID = ulid.Make().String()
	}
	drawing.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drawings (id, game_id, user_id, image, width, height, element_count, elapsed_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		drawing.ID, drawing.GameID, drawing.UserID, drawing.Image,
		drawing.Width, drawing.Height, drawing.ElementCount, drawing.ElapsedSeconds, drawing.CreatedAt)
	if err != nil {
		logrus.WithError(err).Error("Failed to store drawing")
		return "", err
	}
	return drawing.ID, nil
}

func (s *sqliteStore) GetDrawing(ctx context.Context, id string) (*core.Drawing, error) {
	drawing := core.Drawing{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT game_id, user_id, image, width, height, element_count, elapsed_seconds, created_at
		FROM drawings WHERE id = ?`, id).Scan(
		&drawing.GameID, &drawing.UserID, &drawing.Image,
		&drawing.Width, &drawing.Height, &drawing.ElementCount, &drawing.ElapsedSeconds, &drawing.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrDrawingNotFound
		}
		return nil, err
	}
	return &drawing, nil
}

func decodeGame(data []byte) (*core.Game, error) {
	var game core.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}
	return &game, nil
}
