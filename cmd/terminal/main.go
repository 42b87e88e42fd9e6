package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/board"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/kv"
	"github.com/kiwari-pos/terminal/internal/logging"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/kiwari-pos/terminal/internal/session"
	"github.com/kiwari-pos/terminal/internal/tabletag"
	"github.com/kiwari-pos/terminal/internal/terminal"
	"github.com/kiwari-pos/terminal/internal/terminalapi"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Format: cfg.LogFormat}); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	store, err := kv.Open(cfg.StatePath)
	if err != nil {
		log.Fatalf("open state: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.New(store)
	go func() {
		if err := sess.Hydrate(ctx); err != nil {
			log.WithError(err).Error("hydrate session")
		}
	}()

	client := remote.New(cfg.APIURL, sess.Token)
	staff := func() (terminal.Staff, error) {
		u, err := sess.User()
		if err != nil {
			return terminal.Staff{}, err
		}
		b, err := sess.Branch()
		if err != nil {
			return terminal.Staff{}, err
		}
		return terminal.Staff{UserID: u.ID, BranchID: b.ID}, nil
	}
	branchID := func() (uuid.UUID, error) {
		b, err := sess.Branch()
		return b.ID, err
	}

	term := terminal.New(client, tabletag.New(store), staff)
	poller := board.New(client, tabletag.New(store), branchID, cfg.PollInterval)
	api := terminalapi.New(sess, client, client, term, poller)

	srv := &http.Server{
		Addr:              ":" + cfg.TerminalPort,
		Handler:           api.Router(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error {
		followFeed(ctx, client, branchID, poller.Nudge)
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", srv.Addr).WithField("api", cfg.APIURL).Info("terminal listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("terminal: %v", err)
	}
	log.Info("terminal stopped")
}

// followFeed keeps one order feed subscription open for the selected branch,
// resubscribing when the selection changes. Every event nudges the board.
func followFeed(ctx context.Context, client *remote.Client, branch board.BranchFunc, nudge func()) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var (
		current uuid.UUID
		cancel  context.CancelFunc = func() {}
	)
	defer func() { cancel() }()

	for {
		id, err := branch()
		if err != nil {
			id = uuid.Nil
		}
		if id != current {
			cancel()
			current = id
			if id != uuid.Nil {
				var subCtx context.Context
				subCtx, cancel = context.WithCancel(ctx)
				go func() {
					_ = client.Subscribe(subCtx, id, func(ev events.Event) {
						log.WithFields(log.Fields{"type": ev.Type, "order_id": ev.OrderID}).Debug("order event")
						nudge()
					})
				}()
			} else {
				cancel = func() {}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
