// Package board keeps a periodically refreshed view of a branch's open
// orders and today's counts.
package board

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/repository"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is how often the board refetches.
const DefaultInterval = 15 * time.Second

// Source is the part of the order repository the board reads.
type Source interface {
	ListUnpaid(ctx context.Context, branchID uuid.UUID) ([]repository.Order, error)
	DailyStats(ctx context.Context, branchID uuid.UUID) (repository.DailyStats, error)
}

// TagReader reads table annotations. Satisfied by *tabletag.Store.
type TagReader interface {
	Get(ctx context.Context, orderID uuid.UUID) (string, bool, error)
}

// BranchFunc returns the selected branch, or an error when none is.
type BranchFunc func() (uuid.UUID, error)

// Fulfillment of an order's lines.
const (
	FulfillmentPending = "pending"
	FulfillmentPartial = "partial"
	FulfillmentServed  = "served"
)

type Card struct {
	repository.Order
	Table       string          `json:"table,omitempty"`
	Total       decimal.Decimal `json:"total"`
	ServedCount int             `json:"served_count"`
	TotalItems  int             `json:"total_items"`
	AllServed   bool            `json:"all_served"`
	Fulfillment string          `json:"fulfillment"`
}

type Snapshot struct {
	BranchID  uuid.UUID             `json:"branch_id"`
	Orders    []Card                `json:"orders"`
	Stats     repository.DailyStats `json:"stats"`
	FetchedAt time.Time             `json:"fetched_at"`
	Err       string                `json:"error,omitempty"`
}

type Poller struct {
	src      Source
	tags     TagReader
	branch   BranchFunc
	interval time.Duration
	nudge    chan struct{}

	mu   sync.RWMutex
	snap Snapshot
}

func New(src Source, tags TagReader, branch BranchFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		src:      src,
		tags:     tags,
		branch:   branch,
		interval: interval,
		nudge:    make(chan struct{}, 1),
		snap:     Snapshot{Orders: []Card{}},
	}
}

// Run refreshes immediately, then on every tick or nudge, until ctx is
// cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("board refresh")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.nudge:
		}
	}
}

// Nudge asks a running poller to refresh now. It never blocks.
func (p *Poller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// Refresh fetches orders and stats in parallel. Without a selected branch the
// board is emptied. On failure the previous snapshot of the same branch is
// kept with the error; another branch's snapshot is dropped.
func (p *Poller) Refresh(ctx context.Context) error {
	branchID, err := p.branch()
	if err != nil || branchID == uuid.Nil {
		p.mu.Lock()
		p.snap = Snapshot{Orders: []Card{}}
		p.mu.Unlock()
		return nil
	}

	var (
		orders []repository.Order
		stats  repository.DailyStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = p.src.ListUnpaid(gctx, branchID)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = p.src.DailyStats(gctx, branchID)
		return err
	})
	if err := g.Wait(); err != nil {
		p.mu.Lock()
		if p.snap.BranchID != branchID {
			p.snap = Snapshot{BranchID: branchID, Orders: []Card{}}
		}
		p.snap.Err = err.Error()
		p.mu.Unlock()
		return err
	}

	cards := make([]Card, 0, len(orders))
	for _, o := range orders {
		cards = append(cards, p.card(ctx, o))
	}

	p.mu.Lock()
	p.snap = Snapshot{BranchID: branchID, Orders: cards, Stats: stats, FetchedAt: time.Now()}
	p.mu.Unlock()
	return nil
}

func (p *Poller) card(ctx context.Context, o repository.Order) Card {
	c := Card{Order: o, TotalItems: len(o.Items), Total: decimal.Zero}
	for _, it := range o.Items {
		if it.Served {
			c.ServedCount++
		}
		c.Total = c.Total.Add(it.PriceAtTime.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	c.AllServed = c.TotalItems > 0 && c.ServedCount == c.TotalItems
	switch {
	case c.AllServed:
		c.Fulfillment = FulfillmentServed
	case c.ServedCount > 0:
		c.Fulfillment = FulfillmentPartial
	default:
		c.Fulfillment = FulfillmentPending
	}

	if o.Channel.RequiresTable() && p.tags != nil {
		if v, ok, err := p.tags.Get(ctx, o.ID); err != nil {
			log.WithError(err).WithField("order_id", o.ID).Debug("board: read table tag")
		} else if ok {
			c.Table = v
		}
	}
	return c
}

// Snapshot returns the latest board.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	s.Orders = append([]Card(nil), p.snap.Orders...)
	return s
}
