package treasury

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/slotledger/market_layer/pkg/logger"
)

// RateSource describes one external exchange-rate endpoint: a JSON URL, a
// gjson path selecting the price, and the currency it quotes. The fetched
// price is scaled into a Numerator over Scale rate.
type RateSource struct {
	Currency string
	URL      string
	Path     string
	Scale    int64 // denominator applied to the fetched price
}

// RateFetcher periodically pulls exchange rates from external JSON endpoints
// and applies them through the service's admin identity.
type RateFetcher struct {
	svc      *Service
	admin    string
	sources  []RateSource
	interval time.Duration
	client   *http.Client
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRateFetcher creates a fetcher that refreshes every interval using admin
// as the acting identity.
func NewRateFetcher(svc *Service, admin string, sources []RateSource, interval time.Duration, log *logger.Logger) *RateFetcher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewDefault("ratefetcher")
	}
	return &RateFetcher{
		svc:      svc,
		admin:    admin,
		sources:  sources,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Name implements system.Service.
func (f *RateFetcher) Name() string { return "treasury-rate-fetcher" }

// Start launches the refresh loop.
func (f *RateFetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.loop(loopCtx)
	return nil
}

// Stop halts the refresh loop and waits for it to exit.
func (f *RateFetcher) Stop(ctx context.Context) error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel = nil
	f.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *RateFetcher) loop(ctx context.Context) {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.RefreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.RefreshAll(ctx)
		}
	}
}

// RefreshAll fetches every configured source once. Individual failures are
// logged and skipped.
func (f *RateFetcher) RefreshAll(ctx context.Context) {
	for _, src := range f.sources {
		if err := f.refresh(ctx, src); err != nil {
			f.log.WithError(err).WithField("currency", src.Currency).Warn("rate refresh failed")
		}
	}
}

func (f *RateFetcher) refresh(ctx context.Context, src RateSource) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, src.URL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	result := gjson.GetBytes(body, src.Path)
	if !result.Exists() {
		return fmt.Errorf("path %q not found in response from %s", src.Path, src.URL)
	}
	scale := src.Scale
	if scale <= 0 {
		scale = 1
	}
	numerator := int64(result.Float() * float64(scale))
	if numerator <= 0 {
		return fmt.Errorf("non-positive rate %v for %s", result.Float(), src.Currency)
	}

	_, err = f.svc.SetExchangeRate(ctx, f.admin, src.Currency, numerator, scale)
	return err
}
