package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/knolsched/internal/config"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/fsrs"
	"github.com/conorfennell/knolsched/internal/review"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/web"
)

const usage = `Usage: knolsched <command> [flags]

Commands:
  serve        Run the HTTP API
  review       Record a review: --user U --card C --rating good
  preview      Show the outcome of every rating for a card
  state        Show a card's state and retrievability
  history      List a card's reviews, oldest first
  reschedule   Rebuild a card's state from its history
  reset        Forget a card's state and history

Run "knolsched <command> --help" for the flags of a command.
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "knolsched: %v\n", err)
		}
		os.Exit(1)
	}
}

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	db      *storage.DB
	reviews *review.Service
	logger  *slog.Logger
	out     io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	cmd, args := args[0], args[1:]

	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)

	var handler func(context.Context, *app) error
	switch cmd {
	case "serve":
		handler = serve
	case "review", "preview", "state", "history", "reschedule", "reset":
		handler = cardCommand(cmd, fs)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errUsage
	}

	cfgFile, _ := fs.GetString("config")
	cfg, err := config.Load(config.Options{File: cfgFile, Flags: fs})
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, stderr)

	params, err := cfg.SchedulerParams()
	if err != nil {
		return err
	}
	scheduler, err := fsrs.NewScheduler(params)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Debug("database opened", "path", cfg.DB.Path)

	return handler(ctx, &app{
		cfg:     cfg,
		db:      db,
		reviews: review.NewService(db, review.NewReviewer(scheduler, nil), logger),
		logger:  logger,
		out:     stdout,
	})
}

// serve runs the HTTP API until ctx is cancelled.
func serve(ctx context.Context, a *app) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           web.NewServer(a.reviews, a.db, a.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// cardCommand registers the flags shared by the per-card commands and
// returns the handler for cmd.
func cardCommand(cmd string, fs *pflag.FlagSet) func(context.Context, *app) error {
	user := fs.StringP("user", "u", "", "User ID")
	card := fs.String("card", "", "Card ID")
	at := fs.String("at", "", "Review time as RFC 3339 (default now)")
	var rating *string
	if cmd == "review" {
		rating = fs.StringP("rating", "r", "", "Again, Hard, Good, Easy or 1-4")
	}

	return func(ctx context.Context, a *app) error {
		key := domain.CardKey{UserID: *user, CardID: *card}
		var when time.Time
		if *at != "" {
			t, err := time.Parse(time.RFC3339, *at)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			when = t
		}

		switch cmd {
		case "review":
			r, err := fsrs.ParseRating(*rating)
			if err != nil {
				return err
			}
			res, err := a.reviews.Submit(ctx, review.Request{Key: key, Rating: r, Now: when})
			if err != nil {
				return err
			}
			return a.print(res)
		case "preview":
			preview, err := a.reviews.Preview(ctx, key, when)
			if err != nil {
				return err
			}
			return a.print(preview)
		case "state":
			snap, err := a.reviews.State(ctx, key, when)
			if err != nil {
				return err
			}
			return a.print(snap)
		case "history":
			history, err := a.reviews.History(ctx, key)
			if err != nil {
				return err
			}
			if history == nil {
				history = []domain.ReviewEntry{}
			}
			return a.print(history)
		case "reschedule":
			state, err := a.reviews.Reschedule(ctx, key)
			if err != nil {
				return err
			}
			return a.print(state)
		default:
			return a.reviews.Reset(ctx, key)
		}
	}
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
