// Command catalog-seed loads gzipped NDJSON product dumps into the catalog
// database.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/catalog-aggregator/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineSize   = 16 << 20
)

type options struct {
	dataDir     string
	pattern     string
	databaseURL string
	workers     int
}

func main() {
	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing product dumps")
	flag.StringVar(&opts.pattern, "pattern", "products*.ndjson.gz", "dump file name pattern")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or CATALOG_DATABASE_URL, DATABASE_URL env)")
	flag.IntVar(&opts.workers, "workers", runtime.GOMAXPROCS(0), "files decoded concurrently")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("CATALOG_DATABASE_URL")
	}
	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if opts.databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		start := time.Now()
		st, err := run(ctx, lg, opts)
		if err != nil {
			return err
		}
		lg.Info("Seed completed",
			zap.Int("written", st.written),
			zap.Int("duplicates", st.duplicates),
			zap.Int("invalid", st.invalid),
			zap.Duration("took", time.Since(start)),
		)
		return nil
	})
}

type stats struct {
	written    int
	duplicates int
	invalid    int
}

func run(ctx context.Context, lg *zap.Logger, opts options) (stats, error) {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, opts.pattern))
	if err != nil {
		return stats{}, errors.Wrap(err, "list dumps")
	}
	if len(files) == 0 {
		return stats{}, errors.Errorf("no %s files in %s", opts.pattern, opts.dataDir)
	}
	lg.Info("Loading dumps", zap.Strings("files", files))

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return stats{}, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return stats{}, errors.Wrap(err, "run migrations")
	}

	ing := postgres.NewIngester(pool)
	since, err := ing.Now(ctx)
	if err != nil {
		return stats{}, err
	}

	var (
		st      stats
		invalid = make([]int, len(files))
		records = make(chan postgres.IngestRecord, 1024)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)

		readers, rctx := errgroup.WithContext(gctx)
		readers.SetLimit(max(opts.workers, 1))
		for i, path := range files {
			readers.Go(func() error {
				n, err := streamFile(rctx, lg, path, records)
				invalid[i] = n
				return err
			})
		}
		return readers.Wait()
	})
	g.Go(func() error {
		return writeRecords(gctx, lg, ing, since, records, &st)
	})
	if err := g.Wait(); err != nil {
		return st, err
	}

	for _, n := range invalid {
		st.invalid += n
	}
	return st, nil
}

// streamFile decodes every line of a gzipped NDJSON dump and sends the
// records to out. Malformed lines are logged and counted, not fatal.
func streamFile(ctx context.Context, lg *zap.Logger, path string, out chan<- postgres.IngestRecord) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var (
		lineNo  int
		invalid int
	)
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, err := parseRecord(line)
		if err != nil {
			invalid++
			lg.Warn("Skipping malformed record",
				zap.String("file", path),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			continue
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return invalid, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return invalid, errors.Wrapf(err, "scan %s", path)
	}

	lg.Info("Dump decoded", zap.String("file", path), zap.Int("lines", lineNo), zap.Int("invalid", invalid))
	return invalid, nil
}

// writeRecords upserts records one at a time. The first record seen for an
// id during this run wins; the bloom filter keeps the exact database check
// off the common path.
func writeRecords(
	ctx context.Context,
	lg *zap.Logger,
	ing *postgres.Ingester,
	since time.Time,
	records <-chan postgres.IngestRecord,
	st *stats,
) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	for rec := range records {
		if seen.TestString(rec.ID) {
			dup, err := ing.WrittenSince(ctx, rec.ID, since)
			if err != nil {
				return err
			}
			if dup {
				st.duplicates++
				continue
			}
		}
		seen.AddString(rec.ID)

		if err := ing.Upsert(ctx, rec); err != nil {
			return err
		}
		st.written++
		if st.written%progressEvery == 0 {
			lg.Info("Write progress", zap.Int("written", st.written), zap.Int("duplicates", st.duplicates))
		}
	}
	return ctx.Err()
}
