package healthcheck

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pinger is anything whose liveness can be probed (postgres, redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Probe struct {
	Name   string
	Pinger Pinger
}

// Checker periodically pings the guard's storage dependencies and keeps the
// latest status per dependency for the health endpoint.
type Checker struct {
	mu       sync.RWMutex
	probes   []Probe
	statuses map[string]*Status
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
	running  bool
}

type Config struct {
	Probes   []Probe
	Interval time.Duration // How often to check (default: 10s)
	Timeout  time.Duration // Per-probe timeout (default: 5s)
}

func NewChecker(cfg *Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	checker := &Checker{
		probes:   cfg.Probes,
		statuses: make(map[string]*Status),
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		stopChan: make(chan struct{}),
	}

	// Assume healthy until the first probe says otherwise.
	for _, probe := range cfg.Probes {
		checker.statuses[probe.Name] = &Status{
			Name:      probe.Name,
			IsHealthy: true,
			LastCheck: time.Now(),
		}
	}

	return checker
}

// Begins periodic checks
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	log.Printf("Starting health checks for %d dependencies (interval: %v)", len(c.probes), c.interval)

	c.checkAll()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.checkAll()
			case <-c.stopChan:
				return
			}
		}
	}()
}

func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false
	close(c.stopChan)
}

func (c *Checker) checkAll() {
	for _, probe := range c.probes {
		c.check(probe)
	}
}

func (c *Checker) check(probe Probe) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := probe.Pinger.Ping(ctx)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.statuses[probe.Name]
	status.LastCheck = now

	if err != nil {
		status.FailureCount++
		status.LastError = err.Error()
		if status.IsHealthy {
			log.Printf("Health check failed for %s: %v", probe.Name, err)
		}
		status.IsHealthy = false
		return
	}

	if !status.IsHealthy {
		log.Printf("Health check recovered for %s", probe.Name)
	}
	status.IsHealthy = true
	status.LastSuccess = now
	status.FailureCount = 0
	status.LastError = ""
}

// Snapshot returns a copy of every dependency status.
func (c *Checker) Snapshot() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Status, len(c.statuses))
	for name, status := range c.statuses {
		out[name] = *status
	}

	return out
}

// Overall collapses per-dependency health into one verdict.
func (c *Checker) Overall() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	unhealthy := 0
	for _, status := range c.statuses {
		if !status.IsHealthy {
			unhealthy++
		}
	}

	switch {
	case unhealthy == 0:
		return Healthy
	case unhealthy < len(c.statuses):
		return Degraded
	default:
		return Unhealthy
	}
}
