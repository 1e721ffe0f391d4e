package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/ccdash/internal/logger"
	"github.com/theirongolddev/ccdash/internal/source"
	"github.com/theirongolddev/ccdash/internal/store"
)

// RebuildStats is the snapshot recorded after one rebuild cycle.
type RebuildStats struct {
	RunID        string        `json:"run_id"`
	FilesScanned int           `json:"files_scanned"`
	Stale        int           `json:"stale"`
	Parsed       int           `json:"parsed"`
	Empty        int           `json:"empty"`
	Errors       int           `json:"errors"`
	Removed      int           `json:"removed"`
	TotalCached  int           `json:"total_cached"`
	Malformed    int           `json:"malformed_lines"`
	Duration     time.Duration `json:"duration_ns"`
}

// Rebuilder runs one full cycle: discover, partition, parse stale files,
// persist them in one batch, then recompute the aggregate.
type Rebuilder struct {
	store     *store.Store
	assembler *source.Assembler
	claudeDir string

	loc     *time.Location
	now     func() time.Time
	stat    StatFunc
	workers int
	log     *slog.Logger
}

// RebuilderOption configures a Rebuilder.
type RebuilderOption func(*Rebuilder)

// WithLocation sets the zone used for calendar buckets.
func WithLocation(loc *time.Location) RebuilderOption {
	return func(r *Rebuilder) { r.loc = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RebuilderOption {
	return func(r *Rebuilder) { r.now = now }
}

// WithStat replaces os.Stat for staleness checks.
func WithStat(stat StatFunc) RebuilderOption {
	return func(r *Rebuilder) { r.stat = stat }
}

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) RebuilderOption {
	return func(r *Rebuilder) { r.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RebuilderOption {
	return func(r *Rebuilder) { r.log = l }
}

// NewRebuilder returns a Rebuilder over the logs under claudeDir.
func NewRebuilder(st *store.Store, asm *source.Assembler, claudeDir string, opts ...RebuilderOption) *Rebuilder {
	r := &Rebuilder{
		store:     st,
		assembler: asm,
		claudeDir: claudeDir,
		loc:       time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	r.log = logger.OrNop(r.log)
	return r
}

type parsed struct {
	file StaleFile
	res  source.ParseResult
	err  error
}

// Rebuild runs one cycle. Per-file failures are logged and counted; any
// other failure aborts the cycle with the batch rolled back and the stored
// aggregate untouched.
func (r *Rebuilder) Rebuild(ctx context.Context) (RebuildStats, error) {
	start := time.Now()
	stats := RebuildStats{RunID: uuid.NewString()}
	log := r.log.With("run_id", stats.RunID)

	scan, err := source.ScanProjects(r.claudeDir)
	if err != nil {
		return stats, fmt.Errorf("scanning %s: %w", r.claudeDir, err)
	}
	stats.FilesScanned = len(scan.Files)

	tracked, err := r.store.TrackedFiles(ctx)
	if err != nil {
		return stats, fmt.Errorf("reading cache: %w", err)
	}

	part := Partition(tracked, scan.Files, r.stat)
	part.AddUnreadableDirs(tracked, scan.UnreadableDirs)
	stats.Stale = len(part.Stale)
	for _, dir := range scan.UnreadableDirs {
		log.Warn("project directory unreadable", "path", dir)
	}
	if len(part.Unreadable) > 0 {
		log.Debug("skipping unreadable files", "count", len(part.Unreadable))
	}

	results := r.parseAll(part.Stale)

	if err := r.persist(ctx, log, results, part, &stats); err != nil {
		return stats, err
	}

	summaries, err := r.store.Summaries(ctx, "")
	if err != nil {
		return stats, fmt.Errorf("loading summaries: %w", err)
	}
	stats.TotalCached = len(summaries)

	if len(summaries) == 0 {
		if err := r.store.DeleteAggregate(ctx); err != nil {
			return stats, fmt.Errorf("clearing aggregate: %w", err)
		}
	} else {
		agg := BuildAggregate(summaries, r.now(), r.loc)
		if err := r.store.PutAggregate(ctx, &agg); err != nil {
			return stats, fmt.Errorf("writing aggregate: %w", err)
		}
	}

	stats.Duration = time.Since(start)
	log.Info("rebuild complete",
		"scanned", stats.FilesScanned,
		"stale", stats.Stale,
		"parsed", stats.Parsed,
		"errors", stats.Errors,
		"removed", stats.Removed,
		"cached", stats.TotalCached,
		"duration", stats.Duration.Round(time.Millisecond),
	)
	return stats, nil
}

// parseAll assembles stale files on a bounded pool. Order of results
// matches the input.
func (r *Rebuilder) parseAll(stale []StaleFile) []parsed {
	results := make([]parsed, len(stale))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, f := range stale {
		g.Go(func() error {
			res, err := r.assembler.Assemble(f.Path, f.Project)
			results[i] = parsed{file: f, res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Rebuilder) persist(ctx context.Context, log *slog.Logger, results []parsed, part Partitioned, stats *RebuildStats) error {
	batch, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = batch.Rollback() }()

	for _, p := range results {
		if p.err != nil {
			stats.Errors++
			log.Warn("parse failed", "path", p.file.Path, "err", p.err)
			continue
		}
		stats.Parsed++
		stats.Malformed += p.res.MalformedLines
		if p.res.MalformedLines > 0 {
			log.Debug("malformed lines", "path", p.file.Path, "count", p.res.MalformedLines)
		}

		if p.res.Record == nil {
			stats.Empty++
			if err := batch.TrackFile(ctx, p.file.Path, p.file.State); err != nil {
				return fmt.Errorf("caching %s: %w", p.file.Path, err)
			}
			continue
		}
		if err := batch.UpsertSession(ctx, p.file.Path, p.file.State, p.res.Record); err != nil {
			return fmt.Errorf("caching %s: %w", p.file.Path, err)
		}
	}

	removed, err := batch.DeleteMissing(ctx, part.Keep())
	if err != nil {
		return fmt.Errorf("removing deleted files: %w", err)
	}
	stats.Removed = removed

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}
