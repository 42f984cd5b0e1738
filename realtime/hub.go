// Package realtime pushes game-record updates to connected clients over
// socket.io. Every change is broadcast as a full-record replacement into a
// room per game id.
package realtime

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"sketchvote/core"
)

// Hub wraps the socket.io server and the game rooms.
type Hub struct {
	io *socketio.Server
}

// NewHub configures the socket.io server and its room lifecycle.
func NewHub(store core.GameStore) *Hub {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	io := socketio.NewServer(nil, opts)
	hub := &Hub{io: io}

	io.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		me := socket.Id()

		socket.On("join-game", func(datas ...any) {
			if len(datas) == 0 {
				return
			}
			gameID, ok := datas[0].(string)
			if !ok || gameID == "" {
				return
			}

			room := socketio.Room(gameID)
			socket.Join(room)
			logrus.WithFields(logrus.Fields{
				"socket_id": me,
				"game_id":   gameID,
			}).Debug("Socket joined game room")

			// New joiners get the current record immediately so they never
			// render from nothing while waiting for the next change.
			if game, err := store.GetGame(context.Background(), gameID); err == nil {
				_ = socket.Emit("game-state", game)
			}
		})

		socket.On("leave-game", func(datas ...any) {
			if len(datas) == 0 {
				return
			}
			if gameID, ok := datas[0].(string); ok && gameID != "" {
				socket.Leave(socketio.Room(gameID))
			}
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return hub
}

// PublishGame broadcasts the full game record to the game's room.
func (h *Hub) PublishGame(game *core.Game) {
	if game == nil {
		return
	}
	if err := h.io.To(socketio.Room(game.ID)).Emit("game-state", game); err != nil {
		logrus.WithError(err).WithField("game_id", game.ID).Warn("Failed to broadcast game state")
	}
}

// IO returns the underlying socket.io server.
func (h *Hub) IO() *socketio.Server {
	return h.io
}

// Close shuts the socket.io server down.
func (h *Hub) Close() {
	h.io.Close(nil)
}
