package reporting

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/udaykiran1867/tce-project1/internal/inventory"
)

const (
	// DefaultRecentLimit is the recent logs page size when none is given.
	DefaultRecentLimit = 25
	// MaxRecentLimit caps the recent logs page size.
	MaxRecentLimit = 200
	// DefaultRemarkLimit is the defective remark page size when none is given.
	DefaultRemarkLimit = 500
	// MaxRemarkLimit caps the defective remark page size.
	MaxRemarkLimit = 1000

	// DefaultBuildTimeout bounds one shared report build.
	DefaultBuildTimeout = 30 * time.Second
)

// RepositoryPort lists the reads the report service depends on.
type RepositoryPort interface {
	MovementsBetween(ctx context.Context, start, end time.Time) ([]inventory.Movement, error)
	RecordsBetween(ctx context.Context, start, end time.Time) ([]ProductRecord, error)
	PriorTotals(ctx context.Context, before time.Time) ([]PriorTotal, error)
	Products(ctx context.Context) ([]inventory.Product, error)
	RecentLogs(ctx context.Context, limit int) ([]LogEntry, error)
	LogsBetween(ctx context.Context, start, end time.Time) ([]LogEntry, error)
	DefectiveRemarks(ctx context.Context, limit int) ([]DefectiveRemark, error)
}

// Service builds reports on top of the repository, caching computed results.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	loc    *time.Location
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time

	buildTimeout time.Duration
}

// NewService constructs the report service. loc is the reporting timezone.
func NewService(repo RepositoryPort, cache *Cache, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, loc: loc, logger: logger, now: time.Now, buildTimeout: DefaultBuildTimeout}
}

// Location returns the reporting timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Now returns the service clock in the reporting timezone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// MonthlySummary returns month buckets for the last months months.
func (s *Service) MonthlySummary(ctx context.Context, months int) ([]MonthBucket, error) {
	months = ClampMonths(months)
	now := s.Now()
	var out []MonthBucket
	err := s.cached(ctx, []string{"summary", s.loc.String(), now.Format("2006-01"), strconv.Itoa(months)}, &out, func(ctx context.Context) (interface{}, error) {
		start, end := SummaryWindow(now, months, s.loc)
		movements, err := s.repo.MovementsBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}
		records, err := s.repo.RecordsBetween(ctx, start, end)
		if err != nil {
			return nil, err
		}
		return BuildMonthlySummary(now, months, s.loc, movements, records), nil
	})
	return out, err
}

// ResolvePeriod resolves month/year query values against the service clock.
func (s *Service) ResolvePeriod(month, year string) (Period, error) {
	return ResolveMonth(month, year, s.Now(), s.loc)
}

// MonthlyProductReport returns the per-product report of the resolved month.
func (s *Service) MonthlyProductReport(ctx context.Context, period Period) (ProductReport, error) {
	var out ProductReport
	err := s.cached(ctx, []string{"products", s.loc.String(), period.Key()}, &out, func(ctx context.Context) (interface{}, error) {
		products, err := s.repo.Products(ctx)
		if err != nil {
			return nil, err
		}
		prior, err := s.repo.PriorTotals(ctx, period.Start)
		if err != nil {
			return nil, err
		}
		movements, err := s.repo.MovementsBetween(ctx, period.Start, period.End)
		if err != nil {
			return nil, err
		}
		records, err := s.repo.RecordsBetween(ctx, period.Start, period.End)
		if err != nil {
			return nil, err
		}
		return BuildProductReport(period, products, prior, movements, records), nil
	})
	return out, err
}

// RecentLogs returns the newest movement log rows, limit clamped to 1..200.
func (s *Service) RecentLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	return s.repo.RecentLogs(ctx, clampLimit(limit, MaxRecentLimit))
}

// DefectiveRemarks returns defective write-offs, limit clamped to 1..1000.
func (s *Service) DefectiveRemarks(ctx context.Context, limit int) ([]DefectiveRemark, error) {
	return s.repo.DefectiveRemarks(ctx, clampLimit(limit, MaxRemarkLimit))
}

// MonthlyLogs returns every movement log row of the period.
func (s *Service) MonthlyLogs(ctx context.Context, period Period) ([]LogEntry, error) {
	return s.repo.LogsBetween(ctx, period.Start, period.End)
}

// Warm precomputes the default summary and the current month product report.
func (s *Service) Warm(ctx context.Context) error {
	if _, err := s.MonthlySummary(ctx, DefaultSummaryMonths); err != nil {
		return err
	}
	now := s.Now()
	_, err := s.MonthlyProductReport(ctx, MonthPeriod(now.Year(), now.Month(), s.loc))
	return err
}

// cached serves a report from redis or builds it once for all concurrent
// callers. The build is detached from the first caller's cancellation and
// bounded by buildTimeout. Redis failures degrade to an uncached build.
func (s *Service) cached(ctx context.Context, parts []string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	useCache := true
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		useCache = false
		key = "uncached:" + strings.Join(parts, ":")
	}
	ch := s.group.DoChan(key, func() (interface{}, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		return s.build(buildCtx, key, useCache, loader)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		if res.Shared {
			s.logger.Debug("report build shared", slog.String("key", key))
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}

func (s *Service) build(ctx context.Context, key string, useCache bool, loader func(context.Context) (interface{}, error)) (json.RawMessage, error) {
	if useCache {
		payload, hit, err := s.cache.Lookup(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("report cache read", slog.String("key", key), slog.Any("error", err))
			useCache = false
		case hit:
			return payload, nil
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := s.cache.Store(ctx, key, raw); err != nil {
			s.logger.Warn("report cache write", slog.String("key", key), slog.Any("error", err))
		}
	}
	return raw, nil
}

func clampLimit(limit, max int) int {
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
