package games

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"sketchvote/core"
	"sketchvote/handlers/auth"
	"sketchvote/middleware"
)

const defaultDrawSeconds = 90

type (
	CreateGameRequest struct {
		Prompt string `json:"prompt"`
	}

	SubmitDrawingRequest struct {
		Image          string `json:"image"` // base64-encoded PNG
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		ElementCount   int    `json:"elementCount"`
		ElapsedSeconds int    `json:"elapsedSeconds"`
	}

	CastVoteRequest struct {
		SubmissionID string `json:"submissionId"`
	}

	// Publisher pushes the updated game record to every connected client in
	// the game's room.
	Publisher interface {
		PublishGame(game *core.Game)
	}

	// Store is the slice of the storage layer these handlers need.
	Store interface {
		core.GameStore
		core.DrawingStore
	}
)

func claimsFrom(r *http.Request) (*auth.AppClaims, bool) {
	claims, ok := r.Context().Value(middleware.ClaimsContextKey).(*auth.AppClaims)
	return claims, ok
}

// HandleCreateGame creates a new game in the lobby phase with the caller as
// its first participant.
func HandleCreateGame(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}

		var req CreateGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
		if req.Prompt == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Prompt is required"})
			return
		}

		game := &core.Game{
			ID:     ulid.Make().String(),
			Status: core.StatusLobby,
			Prompt: req.Prompt,
			Participants: []core.Participant{{
				UserID:    claims.Subject,
				Name:      claims.Name,
				AvatarURL: claims.AvatarURL,
			}},
		}
		if err := store.SaveGame(r.Context(), game); err != nil {
			logrus.WithError(err).Error("Failed to create game")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create game"})
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, game)
	}
}

// HandleGetGame returns the full game record.
func HandleGetGame(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameId")

		game, err := store.GetGame(r.Context(), gameID)
		if err != nil {
			if errors.Is(err, core.ErrGameNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Game not found"})
				return
			}
			logrus.WithError(err).WithField("game_id", gameID).Error("Failed to get game")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get game"})
			return
		}

		render.JSON(w, r, game)
	}
}

// HandleJoinGame adds the caller to the game's participant list while it is
// still in the lobby.
func HandleJoinGame(store Store, pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}
		gameID := chi.URLParam(r, "gameId")

		game, err := store.GetGame(r.Context(), gameID)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Game not found"})
			return
		}
		if game.Status != core.StatusLobby {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Game has already started"})
			return
		}

		for _, p := range game.Participants {
			if p.UserID == claims.Subject {
				render.JSON(w, r, game)
				return
			}
		}

		game.Participants = append(game.Participants, core.Participant{
			UserID:    claims.Subject,
			Name:      claims.Name,
			AvatarURL: claims.AvatarURL,
		})
		if err := store.SaveGame(r.Context(), game); err != nil {
			logrus.WithError(err).Error("Failed to join game")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to join game"})
			return
		}

		pub.PublishGame(game)
		render.JSON(w, r, game)
	}
}

// HandleSetReady marks the caller ready. Once every participant is ready the
// game leaves the lobby and the drawing phase begins.
func HandleSetReady(store Store, pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}
		gameID := chi.URLParam(r, "gameId")

		game, err := store.GetGame(r.Context(), gameID)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Game not found"})
			return
		}
		if game.Status != core.StatusLobby {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Game has already started"})
			return
		}

		found := false
		allReady := true
		for i := range game.Participants {
			if game.Participants[i].UserID == claims.Subject {
				game.Participants[i].Ready = true
				found = true
			}
			if !game.Participants[i].Ready {
				allReady = false
			}
		}
		if !found {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Not a participant of this game"})
			return
		}

		if allReady && len(game.Participants) >= 2 {
			game.Status = core.StatusDrawing
			game.PhaseExpires = time.Now().Add(defaultDrawSeconds * time.Second)
		}

		if err := store.SaveGame(r.Context(), game); err != nil {
			logrus.WithError(err).Error("Failed to update readiness")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to update readiness"})
			return
		}

		pub.PublishGame(game)
		render.JSON(w, r, game)
	}
}

// HandleSubmitDrawing stores the exported drawing and appends a submission
// to the game.
func HandleSubmitDrawing(store Store, pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}
		gameID := chi.URLParam(r, "gameId")

		var req SubmitDrawingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
		image, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || len(image) == 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Image must be base64-encoded PNG data"})
			return
		}

		game, err := store.GetGame(r.Context(), gameID)
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Game not found"})
			return
		}
		if game.Status != core.StatusDrawing {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Game is not in the drawing phase"})
			return
		}
		if game.SubmissionOf(claims.Subject) != nil {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Drawing already submitted"})
			return
		}

		drawingID, err := store.PutDrawing(r.Context(), &core.Drawing{
			GameID:         gameID,
			UserID:         claims.Subject,
			Image:          image,
			Width:          req.Width,
			Height:         req.Height,
			ElementCount:   req.ElementCount,
			ElapsedSeconds: req.ElapsedSeconds,
		})
		if err != nil {
			logrus.WithError(err).Error("Failed to store drawing")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to store drawing"})
			return
		}

		game, err = store.AddSubmission(r.Context(), gameID, core.Submission{
			UserID:     claims.Subject,
			DrawingURL: "/api/v1/drawings/" + drawingID,
		})
		if err != nil {
			logrus.WithError(err).Error("Failed to add submission")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to add submission"})
			return
		}

		pub.PublishGame(game)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, game)
	}
}

// HandleCastVote records the caller's single vote for a submission. The
// server is the only place a tally is ever incremented.
func HandleCastVote(store Store, pub Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}
		gameID := chi.URLParam(r, "gameId")

		var req CastVoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubmissionID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "submissionId is required"})
			return
		}

		game, err := store.CastVote(r.Context(), gameID, claims.Subject, req.SubmissionID)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrGameNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Game not found"})
			case errors.Is(err, core.ErrAlreadyVoted):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, map[string]string{"error": "Vote already cast"})
			case errors.Is(err, core.ErrOwnSubmission):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, map[string]string{"error": "Cannot vote for your own drawing"})
			case errors.Is(err, core.ErrUnknownSubmission):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, map[string]string{"error": "Unknown submission"})
			default:
				logrus.WithError(err).Error("Failed to cast vote")
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, map[string]string{"error": "Failed to cast vote"})
			}
			return
		}

		pub.PublishGame(game)
		render.JSON(w, r, game)
	}
}

// HandleGetDrawing serves the stored PNG for a submission.
func HandleGetDrawing(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drawingID := chi.URLParam(r, "drawingId")

		drawing, err := store.GetDrawing(r.Context(), drawingID)
		if err != nil {
			if errors.Is(err, core.ErrDrawingNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "Drawing not found"})
				return
			}
			logrus.WithError(err).Error("Failed to get drawing")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get drawing"})
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Write(drawing.Image)
	}
}
