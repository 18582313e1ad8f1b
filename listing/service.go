package listing

import (
	"context"
	"time"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
)

type DogSource interface {
	ListAll(ctx context.Context) ([]dog.Record, error)
}

type PendingSource interface {
	PendingCounts(ctx context.Context) (map[string]int, error)
}

// Service reads without locks; a listing may trail a concurrent resolution.
type Service struct {
	dogs    DogSource
	pending PendingSource
	now     func() time.Time
}

type Query struct {
	Bucket *Bucket
	Limit  int
}

func NewService(dogs DogSource, pending PendingSource) *Service {
	return &Service{
		dogs:    dogs,
		pending: pending,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Query(ctx context.Context, q Query) ([]Entry, error) {
	entries, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if q.Bucket != nil {
		entries = Filter(entries, *q.Bucket)
	}
	SortNewestFirst(entries)
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return entries, nil
}

func (s *Service) snapshot(ctx context.Context) ([]Entry, error) {
	dogs, err := s.dogs.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.pending.PendingCounts(ctx)
	if err != nil {
		return nil, err
	}
	return Project(dogs, pending, s.now()), nil
}

// Monitor periodically publishes bucket sizes as a gauge so expiring dogs
// show up on dashboards without anyone loading the listing.
type Monitor struct {
	svc      *Service
	metrics  *obs.Metrics
	logger   *obs.Logger
	interval time.Duration
}

func NewMonitor(svc *Service, metrics *obs.Metrics, logger *obs.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{svc: svc, metrics: metrics, logger: logger, interval: interval}
}

func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error(map[string]any{"op": "bucket_sweep", "error": err})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Sweep projects once and updates the gauge.
func (m *Monitor) Sweep(ctx context.Context) (map[Bucket]int, error) {
	entries, err := m.svc.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	counts := Counts(entries)
	if m.metrics != nil {
		for b, n := range counts {
			m.metrics.DogsByBucket.WithLabelValues(string(b)).Set(float64(n))
		}
	}
	return counts, nil
}
