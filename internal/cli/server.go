package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/config"
	"quiz-room-service/internal/infra/amqp"
	"quiz-room-service/internal/infra/postgres"
	transport "quiz-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(ctx context.Context, opts *options) error {
	cfg, log, err := opts.load(nil)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	var (
		recorders []app.ResultRecorder
		results   transport.ResultLister
	)
	if cfg.Postgres.URL != "" {
		db, err := openBun(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		archive := postgres.NewResultArchive(db)
		recorders = append(recorders, archive)
		results = archive
	}
	if cfg.AMQP.URL != "" {
		publisher, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			return err
		}
		defer publisher.Close()
		recorders = append(recorders, publisher)
		log.Info("publishing game results", "queue", cfg.AMQP.Queue)
	}

	rooms := app.NewRoomService(b.rooms, b.questions,
		app.WithFinalLevel(cfg.Game.FinalLevel),
		app.WithRecorders(recorders...),
		app.WithLogger(log),
	)
	questions := app.NewQuestionService(b.questions, log)
	if err := seedQuestions(ctx, cfg, questions, log); err != nil {
		return err
	}

	var clock *app.HostClock
	if cfg.HostAutoEnd() {
		clock = app.NewHostClock(b.rooms, rooms, cfg.Game.QuestionSeconds, log)
		defer clock.Close()
	}

	handler := transport.NewRouter(transport.Deps{
		Rooms:     rooms,
		Questions: questions,
		Store:     b.rooms,
		Bank:      b.questions,
		Clock:     clock,
		Results:   results,
		Session: app.SessionConfig{
			QuestionSeconds: cfg.Game.QuestionSeconds,
			ResultDelay:     config.TTLDuration(cfg.Game.ResultDelay, 2*time.Second),
			Logger:          log,
		},
		PublicURL: cfg.Server.PublicURL,
		Logger:    log,
	})

	// No WriteTimeout: event streams stay open for the whole game.
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz room service", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
