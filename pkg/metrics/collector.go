package metrics

import (
	"sync"
	"time"

	"github.com/modelingevolution/autoupdater/pkg/events"
	"github.com/modelingevolution/autoupdater/pkg/registry"
)

// Collector drives the ambient observability surface (§6.2): it ticker-polls
// the registry cache for a packages-by-status snapshot, and subscribes to
// the event broker to turn Engine.Update's started/finished event pair into
// update counters, a duration histogram, and a recovery counter.
type Collector struct {
	regs   []*registry.Reconciler
	broker *events.Broker
	stopCh chan struct{}

	mu      sync.Mutex
	started map[string]*Timer
}

// NewCollector creates a new metrics collector. regs is typically one
// Reconciler per distinct host its packages are deployed to; all of them
// publish onto the same shared broker, so one Collector covers the whole
// fleet.
func NewCollector(regs []*registry.Reconciler, broker *events.Broker) *Collector {
	return &Collector{
		regs:    regs,
		broker:  broker,
		stopCh:  make(chan struct{}),
		started: make(map[string]*Timer),
	}
}

// Start begins collecting metrics in the background.
func (c *Collector) Start() {
	sub := c.broker.Subscribe()

	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collectPackages()

		for {
			select {
			case <-ticker.C:
				c.collectPackages()
			case event, ok := <-sub:
				if !ok {
					ticker.Stop()
					return
				}
				c.handleEvent(event)
			case <-c.stopCh:
				ticker.Stop()
				c.broker.Unsubscribe(sub)
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collectPackages() {
	counts := make(map[string]int)

	for _, reg := range c.regs {
		entries, err := reg.Entries()
		if err != nil {
			continue
		}

		byName := make(map[string]bool, len(entries))
		for _, e := range entries {
			status := e.LastStatus
			if status == "" {
				status = "Unknown"
			}
			counts[status]++
			byName[e.PackageName] = true
		}

		for _, pkg := range reg.Packages() {
			if !byName[pkg.Name] {
				counts["Unknown"]++
			}
		}
	}

	PackagesTotal.Reset()
	for status, count := range counts {
		PackagesTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) handleEvent(event *events.Event) {
	switch event.Type {
	case events.EventUpdateStarted:
		c.mu.Lock()
		c.started[event.Package] = NewTimer()
		c.mu.Unlock()

	case events.EventUpdateFinished:
		c.mu.Lock()
		timer := c.started[event.Package]
		delete(c.started, event.Package)
		c.mu.Unlock()

		outcome := event.Metadata["status"]
		if outcome == "" {
			outcome = "unknown"
		}
		UpdatesTotal.WithLabelValues(event.Package, outcome).Inc()

		if timer != nil {
			timer.ObserveDurationVec(UpdateDuration, event.Package)
		}

		if event.Metadata["recoveryPerformed"] == "true" {
			RecoveryTotal.WithLabelValues(event.Package).Inc()
		}
	}
}
