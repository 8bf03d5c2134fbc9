package monitor

import (
	"context"
	"time"

	"github.com/cuemby/drover/pkg/dmsetup"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
	"github.com/rs/zerolog"
)

// VolumeDriver is the slice of the driver the monitor needs.
type VolumeDriver interface {
	// BackendHost reports this daemon's host@backend identifier; ok is
	// false while the service is not registered yet.
	BackendHost() (string, bool)
	OverlayStatus(ctx context.Context, volume *types.VolumeRecord) (*dmsetup.Status, error)
	CompleteMigration(ctx context.Context, volume *types.VolumeRecord) error
}

// Monitor watches active migrations on this host and finalizes each one
// as soon as its overlay is fully hydrated.
type Monitor struct {
	driver   VolumeDriver
	store    storage.Store
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// New creates a monitor ticking at the given interval.
func New(driver VolumeDriver, store storage.Store, interval time.Duration) *Monitor {
	return &Monitor{
		driver:   driver,
		store:    store,
		interval: interval,
		logger:   log.WithComponent("monitor"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the monitoring loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop stops the monitor.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Tick(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Tick runs one scan. Per-volume failures are logged and never stop the
// scan; an unfinished migration is simply retried on the next tick.
func (m *Monitor) Tick(ctx context.Context) {
	timer := prometheusTimer()
	defer timer()

	host, ok := m.driver.BackendHost()
	if !ok {
		// Normal during startup, before the service has registered.
		m.logger.Debug().Msg("backend host not ready, skipping tick")
		return
	}

	logger := log.WithHost(m.logger, host)
	volumes, err := m.store.ListVolumesByHost(host)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list volumes")
		return
	}

	active := 0
	counts := make(map[types.VolumeStatus]int)
	for _, volume := range volumes {
		counts[volume.Status]++
		if !volume.MigrationStatus.IsTarget() {
			continue
		}
		active++
		m.checkMigration(ctx, volume)
	}
	metrics.MigrationsActive.Set(float64(active))
	metrics.VolumesTotal.Reset()
	for status, n := range counts {
		metrics.VolumesTotal.WithLabelValues(string(status)).Set(float64(n))
	}
}

// checkMigration inspects one volume's overlay and finalizes the
// migration when hydration has finished.
func (m *Monitor) checkMigration(ctx context.Context, volume *types.VolumeRecord) {
	logger := log.WithVolumeID(m.logger, volume.ID)

	status, err := m.driver.OverlayStatus(ctx, volume)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read overlay status")
		return
	}
	if status.TargetType != dmsetup.TargetClone {
		// Already cut over, or something replaced the mapping. Never
		// touch a mapping we do not understand.
		logger.Warn().Str("target_type", status.TargetType).
			Msg("mapping is not a clone target, skipping")
		return
	}
	if !status.Clone.HydrationComplete() {
		logger.Debug().
			Uint64("hydrated", status.Clone.HydratedRegions).
			Uint64("total", status.Clone.TotalRegions).
			Msg("hydration in progress")
		return
	}

	if err := m.driver.CompleteMigration(ctx, volume); err != nil {
		logger.Error().Err(err).Msg("failed to complete migration")
	}
}

// prometheusTimer observes one tick's duration and counts it.
func prometheusTimer() func() {
	start := time.Now()
	return func() {
		metrics.MonitorTickDuration.Observe(time.Since(start).Seconds())
		metrics.MonitorTicksTotal.Inc()
	}
}
