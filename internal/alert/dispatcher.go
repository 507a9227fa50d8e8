package alert

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

// Dispatcher fans drift incidents out to configured webhook
// destinations, applying per-destination severity floors and
// per-(agent, detector) cooldowns.
type Dispatcher struct {
	configs []Config
	logger  *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// sendFn is swapped in tests.
	sendFn func(Config, []byte) error

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher for the given destinations.
// Destinations with an empty URL are skipped; returns nil when no
// destination remains.
func NewDispatcher(configs []Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]Config, 0, len(configs))
	for _, c := range configs {
		if c.URL == "" {
			continue
		}
		c.applyDefaults()
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil
	}
	return &Dispatcher{
		configs:  kept,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
		sendFn:   send,
	}
}

// Dispatch delivers the incident to every destination whose severity
// floor and cooldown allow it. Delivery is asynchronous; failures are
// logged, never returned.
func (d *Dispatcher) Dispatch(inc *model.DriftIncident) {
	if d == nil {
		return
	}
	for i, cfg := range d.configs {
		if inc.Severity.Rank() < cfg.MinSeverity.Rank() {
			continue
		}
		if !d.allow(i, cfg, inc) {
			d.logger.Debug("alert suppressed by cooldown",
				"agent", inc.AgentID, "detector", inc.Detector, "url", cfg.URL)
			continue
		}

		body, err := formatPayload(cfg.Format, inc)
		if err != nil {
			d.logger.Error("format alert payload", "format", cfg.Format, "error", err)
			continue
		}

		d.wg.Add(1)
		go func(cfg Config, body []byte) {
			defer d.wg.Done()
			if err := d.sendFn(cfg, body); err != nil {
				d.logger.Error("deliver alert", "url", cfg.URL, "error", err)
			}
		}(cfg, body)
	}
}

// Callback adapts the dispatcher for monitor incident callbacks.
func (d *Dispatcher) Callback() func(*model.DriftIncident) {
	return d.Dispatch
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) allow(idx int, cfg Config, inc *model.DriftIncident) bool {
	key := fmt.Sprintf("%d:%s:%s", idx, inc.AgentID, inc.Detector)

	d.mu.Lock()
	lim, ok := d.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(cfg.Cooldown), 1)
		d.limiters[key] = lim
	}
	d.mu.Unlock()

	return lim.Allow()
}
