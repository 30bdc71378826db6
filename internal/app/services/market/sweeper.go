package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/slotledger/market_layer/internal/app/storage"
	"github.com/slotledger/market_layer/internal/app/system"
	"github.com/slotledger/market_layer/pkg/logger"
)

// Sweeper is a host-layer collaborator that finalizes ended auctions in the
// background. The engine itself only evaluates auction time lazily; the
// sweeper simply invokes the public finalize operation on a schedule.
type Sweeper struct {
	db       storage.DB
	service  *Service
	schedule cron.Schedule
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper creates a sweeper. spec is a cron schedule expression such as
// "@every 30s"; an empty or invalid spec falls back to every 30 seconds.
func NewSweeper(db storage.DB, service *Service, spec string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("market-sweeper")
	}
	if spec == "" {
		spec = "@every 30s"
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		log.WithError(err).WithField("spec", spec).Warn("invalid sweep schedule, using 30s")
		schedule = cron.Every(30 * time.Second)
	}
	return &Sweeper{
		db:       db,
		service:  service,
		schedule: schedule,
		log:      log,
	}
}

func (p *Sweeper) Name() string { return "market-sweeper" }

func (p *Sweeper) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(runCtx)
	}()
	return nil
}

func (p *Sweeper) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.running = false
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Sweeper) loop(ctx context.Context) {
	for {
		next := p.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			p.SweepOnce(ctx)
		}
	}
}

// SweepOnce finalizes every active auction whose end time has passed.
func (p *Sweeper) SweepOnce(ctx context.Context) {
	ended, err := p.db.ListAuctionsEndingBefore(ctx, p.service.now())
	if err != nil {
		p.log.WithError(err).Error("list ended auctions")
		return
	}
	for _, a := range ended {
		if _, err := p.service.FinalizeReserveAuction(ctx, a.ID); err != nil {
			// a concurrent finalize or a last-moment extension is fine
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			p.log.WithError(err).WithField("auction_id", a.ID).Error("sweep finalize failed")
			continue
		}
		p.log.WithField("auction_id", a.ID).Info("auction swept")
	}
}
