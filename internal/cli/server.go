package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"pickside-quiz-service/internal/app"
	"pickside-quiz-service/internal/config"
	"pickside-quiz-service/internal/domain"
	"pickside-quiz-service/internal/infra/memory"
	pgloader "pickside-quiz-service/internal/infra/postgres"
	redisdeck "pickside-quiz-service/internal/infra/redis"
	transport "pickside-quiz-service/internal/transport/http"
)

// DeckRepository resolves deck content, possibly through a cache.
type DeckRepository interface {
	GetDeck(ctx context.Context, deckID string) (domain.Deck, error)
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.DeckLoader = memory.NewStaticDeckLoader(sampleDecks())
	if pool != nil {
		loader = pgloader.NewDeckLoader(pool)
	}

	deckTTL := config.TTLDuration(cfg.Deck.TTL, 10*time.Minute)
	var decks DeckRepository
	if redisClient != nil {
		decks = redisdeck.NewDeckRepository(redisClient, loader, deckTTL)
	} else {
		decks = memory.NewDeckRepository(loader, deckTTL)
	}

	deckID := cfg.Deck.ID
	if deckID == "" {
		deckID = "warehouse-1"
	}
	deck, err := decks.GetDeck(ctx, deckID)
	if err != nil {
		return err
	}
	if err := deck.Validate(); err != nil {
		return err
	}

	session := app.NewSession(deck, cfg.Rules())
	wsHandler := transport.NewWSHandler(session)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting pickside with deck %q (%d questions) on :%s", deck.ID, len(deck.Questions), finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleDecks provides a built-in deck for redis/postgres-less demos.
func sampleDecks() map[string]domain.Deck {
	return map[string]domain.Deck{
		"warehouse-1": {
			ID: "warehouse-1",
			Questions: []domain.QuestionRecord{
				{
					ID:          1,
					Text:        "High SKU variability: items look very different from each other",
					Target:      domain.SideLeft,
					Label:       "Manual",
					Explanation: "Grippers struggle with unpredictable shapes; people do not.",
				},
				{
					ID:          2,
					Text:        "High volume, low variation: picking the same box 10k times a day",
					Target:      domain.SideRight,
					Label:       "Automate",
					Explanation: "Repetitive identical picks are the sweet spot for robotics.",
				},
				{
					ID:          3,
					Text:        "Fragile items: glass and eggs",
					Target:      domain.SideLeft,
					Label:       "Manual",
					Explanation: "Force feedback on delicate goods is still a hard problem.",
				},
				{
					ID:          4,
					Text:        "Pallet moves between fixed dock doors",
					Target:      domain.SideRight,
					Label:       "Automate",
					Explanation: "Fixed routes with heavy loads are solved AGV territory.",
				},
			},
		},
	}
}
