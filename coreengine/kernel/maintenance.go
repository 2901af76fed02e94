package kernel

import (
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/selene/coreengine/observability"
)

// MaintenanceConfig holds the maintenance loop parameters.
type MaintenanceConfig struct {
	// Interval is how often to run a cycle (default: 5 minutes).
	Interval time.Duration
	// RateWindowRetention is how long an empty tenant window is kept
	// (default: 1 hour).
	RateWindowRetention time.Duration
}

// DefaultMaintenanceConfig returns default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Interval:            5 * time.Minute,
		RateWindowRetention: time.Hour,
	}
}

// StartMaintenanceLoop runs a maintenance cycle every cfg.Interval until the
// returned stop function is called. Stop may be called more than once.
func (k *Kernel) StartMaintenanceLoop(cfg MaintenanceConfig) func() {
	if cfg.Interval <= 0 {
		cfg = DefaultMaintenanceConfig()
	}

	ticker := time.NewTicker(cfg.Interval)
	done := make(chan struct{})
	stopped := make(chan struct{})

	SafeGo(k.logger, "maintenance_loop", func() {
		defer close(stopped)
		for {
			select {
			case <-ticker.C:
				k.RunMaintenanceCycle(cfg)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}, nil)

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}
}

// RunMaintenanceCycle performs one cycle under the turn lock. A panic is
// recovered and logged; the next cycle runs as usual.
func (k *Kernel) RunMaintenanceCycle(cfg MaintenanceConfig) {
	k.mu.Lock()
	defer k.mu.Unlock()

	_ = SafeExecute(k.logger, "maintenance", func() error {
		cleaned := k.rateLimiter.CleanupExpired(cfg.RateWindowRetention)
		observability.RecordMaintenanceCycle(cleaned)
		k.logger.Debug("maintenance_cycle_completed",
			"rate_windows_cleaned", cleaned,
			"rate_windows_live", k.rateLimiter.Len(),
		)
		return nil
	})
}
