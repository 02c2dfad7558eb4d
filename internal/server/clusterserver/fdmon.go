package clusterserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/procfs"
)

// FDSource reports descriptor usage of the daemon process.
type FDSource interface {
	// Descriptors returns the open descriptor count and the soft limit.
	Descriptors() (open, limit int, err error)
}

// procFDSource reads /proc/self.
type procFDSource struct{}

func (procFDSource) Descriptors() (int, int, error) {
	p, err := procfs.Self()
	if err != nil {
		return 0, 0, err
	}
	open, err := p.FileDescriptorsLen()
	if err != nil {
		return 0, 0, err
	}
	limits, err := p.Limits()
	if err != nil {
		return 0, 0, err
	}
	return open, int(limits.OpenFiles), nil
}

// FDMonitor polls descriptor usage and reports transitions across the
// low-water mark.
type FDMonitor struct {
	source    FDSource
	minFree   int
	interval  time.Duration
	report    func(notEnough bool, available int)
	logger    *slog.Logger
	notEnough bool
}

// NewFDMonitor creates a monitor that calls report whenever the number of
// free descriptors crosses minFree. A nil source reads /proc/self.
func NewFDMonitor(source FDSource, minFree int, interval time.Duration, report func(bool, int), logger *slog.Logger) *FDMonitor {
	if source == nil {
		source = procFDSource{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FDMonitor{
		source:   source,
		minFree:  minFree,
		interval: interval,
		report:   report,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled.
func (m *FDMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check()
	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-ctx.Done():
			return
		}
	}
}

// Check samples once and reports a transition.
func (m *FDMonitor) Check() {
	open, limit, err := m.source.Descriptors()
	if err != nil {
		m.logger.Debug("descriptor sample failed", "error", err)
		return
	}
	available := limit - open
	notEnough := available < m.minFree
	if notEnough == m.notEnough {
		return
	}
	m.notEnough = notEnough
	if m.report != nil {
		m.report(notEnough, available)
	}
}
