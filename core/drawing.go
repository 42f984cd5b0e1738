package core

import (
	"context"
	"errors"
	"time"
)

var ErrDrawingNotFound = errors.New("drawing not found")

type (
	// Drawing is an exported raster image of a finished canvas plus the
	// metadata the upload pipeline records alongside it.
	Drawing struct {
		ID             string    `json:"id"`
		GameID         string    `json:"gameId"`
		UserID         string    `json:"userId"`
		Image          []byte    `json:"image,omitempty"` // PNG bytes
		Width          int       `json:"width"`
		Height         int       `json:"height"`
		ElementCount   int       `json:"elementCount"`
		ElapsedSeconds int       `json:"elapsedSeconds"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	// DrawingStore defines the persistence layer for exported drawings.
	DrawingStore interface {
		// PutDrawing stores an exported drawing and returns its id.
		PutDrawing(ctx context.Context, drawing *Drawing) (string, error)

		// GetDrawing returns a single drawing by its id.
		GetDrawing(ctx context.Context, id string) (*Drawing, error)
	}
)
