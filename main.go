package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"sketchvote/handlers/api/games"
	"sketchvote/handlers/api/prompts"
	"sketchvote/handlers/auth"
	authMiddleware "sketchvote/middleware"
	"sketchvote/realtime"
	"sketchvote/stores"
)

func setupRouter(store stores.Store, hub *realtime.Hub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// Game flow, protected by JWT auth
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)
			r.Route("/games", func(r chi.Router) {
				r.Post("/", games.HandleCreateGame(store))
				r.Route("/{gameId}", func(r chi.Router) {
					r.Get("/", games.HandleGetGame(store))
					r.Post("/join", games.HandleJoinGame(store, hub))
					r.Post("/ready", games.HandleSetReady(store, hub))
					r.Post("/submissions", games.HandleSubmitDrawing(store, hub))
					r.Post("/votes", games.HandleCastVote(store, hub))
				})
			})
			r.Get("/prompts", prompts.HandleGeneratePrompt())
		})

		// Drawings are public so submission images can be embedded anywhere.
		r.Get("/drawings/{drawingId}", games.HandleGetDrawing(store))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", auth.HandleGitHubLogin)
		r.Get("/callback", auth.HandleGitHubCallback)
		r.Post("/guest", auth.HandleGuestLogin)
	})

	return r
}

func waitForShutdown(hub *realtime.Hub, ticker *realtime.PhaseTicker) {
	exit := make(chan struct{})
	signalC := make(chan os.Signal, 1)

	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range signalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	ticker.Stop()
	hub.Close()
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.InitAuth()
	prompts.Init()
	store := stores.GetStore()

	hub := realtime.NewHub(store)
	ticker := realtime.NewPhaseTicker(store, hub)
	ticker.Start()

	r := setupRouter(store, hub)
	r.Mount("/socket.io/", hub.IO().ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(hub, ticker)
}
