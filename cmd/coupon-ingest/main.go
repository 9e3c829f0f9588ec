package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orderflow/internal/domain/promotion"
	"github.com/xenking/orderflow/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

type options struct {
	dataDir       string
	pattern       string
	databaseURL   string
	promotionID   string
	minFiles      int
	maxUses       int
	batchSize     int
	bloomCapacity uint
}

// fileResult holds candidate codes found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var opts options

	flag.StringVar(&opts.dataDir, "data-dir", "data", "directory containing gzipped code lists")
	flag.StringVar(&opts.pattern, "pattern", "couponbase*.gz", "glob of code list files inside data-dir")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.promotionID, "promotion-id", "", "promotion unlocked by the ingested codes")
	flag.IntVar(&opts.minFiles, "min-files", 2, "number of files a code must appear in")
	flag.IntVar(&opts.maxUses, "max-uses", 1, "redemptions allowed per code (0 is unlimited)")
	flag.IntVar(&opts.batchSize, "batch-size", 1000, "coupons written per round trip")
	flag.UintVar(&opts.bloomCapacity, "bloom-capacity", 120_000_000, "expected codes per file")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.promotionID == "" {
		slog.Error("promotion ID is required: set --promotion-id")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(filepath.Join(opts.dataDir, opts.pattern))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	if opts.minFiles < 2 {
		return errors.Errorf("min-files must be at least 2, got %d", opts.minFiles)
	}
	if len(files) < opts.minFiles {
		return errors.Errorf("found %d code files, need at least %d", len(files), opts.minFiles)
	}
	if len(files) > bits.UintSize {
		return errors.Errorf("too many code files: %d", len(files))
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	rule, err := postgres.NewPromotionRepository(pool).Get(ctx, opts.promotionID)
	if err != nil {
		return errors.Wrapf(err, "get promotion %s", opts.promotionID)
	}
	if rule.CouponCode == "" {
		return errors.Errorf("promotion %s is not coupon gated", rule.ID)
	}

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, opts.bloomCapacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Find candidate codes appearing in enough files.
	slog.Info("pass 2: finding candidate codes", slog.Int("min_files", opts.minFiles))

	validCodes, err := findValidCodes(ctx, files, filters, opts.minFiles)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(validCodes)))

	if len(validCodes) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	coupons := couponsFor(validCodes, rule.ID, opts.maxUses)
	if err := writeCoupons(ctx, postgres.NewCouponRepository(pool), coupons, opts.batchSize); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, capacity, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, capacity uint, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(capacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("file", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidCodes re-streams each file and checks codes against OTHER files' bloom filters.
// A code is valid if it appears in at least minFiles files. The result is sorted.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter, minFiles int) ([]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= minFiles {
			valid = append(valid, code)
		}
	}
	sort.Strings(valid)

	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("codes", count),
				)
			}

			// Check if this code appears in any OTHER file's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// couponsFor attaches every code to the promotion it unlocks.
func couponsFor(codes []string, promotionID string, maxUses int) []promotion.Coupon {
	coupons := make([]promotion.Coupon, len(codes))
	for i, code := range codes {
		coupons[i] = promotion.Coupon{Code: code, PromotionID: promotionID, MaxUses: maxUses}
	}
	return coupons
}

// writeCoupons upserts the coupons in batches.
func writeCoupons(ctx context.Context, repo *postgres.CouponRepository, coupons []promotion.Coupon, batchSize int) error {
	slog.Info("writing coupons to database", slog.Int("count", len(coupons)))

	for batch := range slices.Chunk(coupons, max(batchSize, 1)) {
		if err := repo.UpsertBatch(ctx, batch); err != nil {
			return errors.Wrapf(err, "upsert batch starting at %s", batch[0].Code)
		}
	}
	slog.Info("write complete", slog.Int("written", len(coupons)))

	return nil
}
