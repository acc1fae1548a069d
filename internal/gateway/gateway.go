package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
	"github.com/jayceecory-tech/ai-qingjia/internal/types"
)

// Exchanger answers one user turn, streaming events to sink.
type Exchanger interface {
	Exchange(ctx context.Context, req runtime.Request, sink runtime.Sink) error
}

// Gateway admits exchanges from every inbound channel (HTTP, Telegram, CLI).
// It stamps each with an id and limits how many run at once; callers over
// the limit wait for a slot.
type Gateway struct {
	exchanger Exchanger
	semaphore *semaphore.Weighted
	active    atomic.Int64
	total     atomic.Int64
}

// New creates a Gateway that allows up to maxConcurrent exchanges to run
// simultaneously. Values below 1 default to 2.
func New(exchanger Exchanger, maxConcurrent int64) *Gateway {
	if maxConcurrent < 1 {
		maxConcurrent = 2
	}
	return &Gateway{
		exchanger: exchanger,
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Handle runs req to completion. It blocks until a slot is free or ctx is
// done; in the latter case no event is delivered.
func (g *Gateway) Handle(ctx context.Context, req runtime.Request, sink runtime.Sink) (types.ExchangeID, error) {
	if req.ID == "" {
		req.ID = types.NewExchangeID()
	}
	log := slog.With("exchange_id", req.ID)

	if err := g.semaphore.Acquire(ctx, 1); err != nil {
		log.Warn("exchange not admitted", "error", err)
		return req.ID, fmt.Errorf("acquire exchange slot: %w", err)
	}
	defer g.semaphore.Release(1)

	g.active.Add(1)
	defer g.active.Add(-1)
	g.total.Add(1)

	start := time.Now()
	log.Info("exchange started", "employee_id", req.EmployeeID, "history", len(req.History))

	err := g.exchanger.Exchange(ctx, req, sink)
	if err != nil {
		log.Warn("exchange ended with error", "error", err, "duration", time.Since(start))
	} else {
		log.Info("exchange finished", "duration", time.Since(start))
	}
	return req.ID, err
}

// Active returns the number of exchanges currently running.
func (g *Gateway) Active() int64 {
	return g.active.Load()
}

// Total returns the number of exchanges admitted since start.
func (g *Gateway) Total() int64 {
	return g.total.Load()
}
