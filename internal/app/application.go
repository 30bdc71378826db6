package app

import (
	"context"
	"time"

	"github.com/slotledger/market_layer/internal/app/domain/market"
	"github.com/slotledger/market_layer/internal/app/identity"
	"github.com/slotledger/market_layer/internal/app/observe"
	ledgersvc "github.com/slotledger/market_layer/internal/app/services/ledger"
	marketsvc "github.com/slotledger/market_layer/internal/app/services/market"
	treasurysvc "github.com/slotledger/market_layer/internal/app/services/treasury"
	"github.com/slotledger/market_layer/internal/app/storage"
	"github.com/slotledger/market_layer/internal/app/storage/memory"
	"github.com/slotledger/market_layer/internal/app/system"
	"github.com/slotledger/market_layer/pkg/logger"
)

// Options configures application construction. Zero values select development
// defaults: an in-memory store and a single-operator authorizer.
type Options struct {
	DB         storage.DB
	Authorizer identity.Authorizer

	Fees              market.FeeSchedule
	MultisigThreshold int

	// SweepSchedule is a cron expression for the auction sweeper.
	SweepSchedule string

	// RateSources enables the background exchange-rate fetcher when set.
	RateSources  []treasurysvc.RateSource
	RateInterval time.Duration
	RateAdmin    string

	// ExtraSinks receive observations in addition to the in-process ring
	// and the log sink.
	ExtraSinks []observe.Sink

	Log *logger.Logger
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	DB           storage.DB
	Ledger       *ledgersvc.Service
	Market       *marketsvc.Service
	Treasury     *treasurysvc.Service
	Observations *observe.Ring
}

// New builds a fully initialised application.
func New(opts Options) (*Application, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("app")
	}

	db := opts.DB
	if db == nil {
		db = memory.New()
	}

	auth := opts.Authorizer
	if auth == nil {
		auth = identity.NewStatic([]string{"admin"}, []string{"admin"},
			map[string][]string{identity.WildcardSlot: {"admin"}})
	}

	fees := opts.Fees
	if fees.TreasuryIdentity == "" {
		fees = market.FeeSchedule{ProtocolBps: 250, ReferrerBps: 100, TreasuryIdentity: "protocol"}
	}
	threshold := opts.MultisigThreshold
	if threshold < 1 {
		threshold = 1
	}

	ring := observe.NewRing(1024)
	sinks := observe.Multi{ring, observe.NewLogSink(log)}
	sinks = append(sinks, opts.ExtraSinks...)

	ledgerService := ledgersvc.New(db, auth, sinks, log)
	treasuryService := treasurysvc.New(db, auth, fees.TreasuryIdentity, threshold, sinks, log)
	marketService := marketsvc.New(db, fees, sinks, log)

	manager := system.NewManager(log)
	manager.Register(marketsvc.NewSweeper(db, marketService, opts.SweepSchedule, log))
	if len(opts.RateSources) > 0 {
		admin := opts.RateAdmin
		if admin == "" {
			admin = "admin"
		}
		manager.Register(treasurysvc.NewRateFetcher(treasuryService, admin, opts.RateSources, opts.RateInterval, log))
	}

	return &Application{
		manager:      manager,
		log:          log,
		DB:           db,
		Ledger:       ledgerService,
		Market:       marketService,
		Treasury:     treasuryService,
		Observations: ring,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) {
	a.manager.Register(service)
}

// Start begins all registered background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all background services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
