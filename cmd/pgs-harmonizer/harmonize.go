package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/pgs-harmonizer/internal/build"
	"github.com/inodb/pgs-harmonizer/internal/duckdb"
	"github.com/inodb/pgs-harmonizer/internal/ensembl"
	"github.com/inodb/pgs-harmonizer/internal/harmonize"
	"github.com/inodb/pgs-harmonizer/internal/liftover"
	"github.com/inodb/pgs-harmonizer/internal/scorefile"
)

type harmonizeOptions struct {
	output      string
	sourceBuild string
	noCache     bool
	force       bool
}

func newHarmonizeCmd() *cobra.Command {
	var opts harmonizeOptions

	cmd := &cobra.Command{
		Use:   "harmonize [flags] <scoring-file>",
		Short: "Harmonize a scoring file to the target build",
		Long: `Harmonize the variants of a PGS Catalog scoring file.

Variants with an rsID are looked up in Ensembl first. Variants without a
usable lookup are lifted over from the author-reported build with UCSC chain
files. Each output row carries an hm_code and an hm_info audit trail.`,
		Example: `  pgs-harmonizer harmonize PGS000001.txt.gz
  pgs-harmonizer harmonize -t GRCh37 -o out.txt PGS000001.txt
  pgs-harmonizer harmonize --variant-id reference --workers 8 PGS000001.txt.gz`,
		Args: usageArgs(cobra.ExactArgs(1)),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for key, flag := range map[string]string{
				"target_build": "target-build",
				"variant_id":   "variant-id",
				"workers":      "workers",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarmonize(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file, '-' for stdout (default <pgs_id>_hmPOS_<build>.txt.gz)")
	cmd.Flags().StringVarP(&opts.sourceBuild, "source-build", "s", "", "override the genome build reported in the file header (recorded as assumed_build in hm_info of failed variants)")
	cmd.Flags().StringP("target-build", "t", "GRCh38", "target genome build")
	cmd.Flags().String("variant-id", "rsid", "variant_id column source: rsid or reference")
	cmd.Flags().IntP("workers", "w", 0, "number of parallel workers (0 = all CPUs)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the DuckDB lookup cache and run ledger")
	cmd.Flags().BoolVar(&opts.force, "force", false, "harmonize even if this input was already harmonized")

	return cmd
}

func runHarmonize(ctx context.Context, inputPath string, opts harmonizeOptions) error {
	idSource, err := harmonize.ParseVariantIDSource(viper.GetString("variant_id"))
	if err != nil {
		return usageError{err}
	}

	f, err := scorefile.Read(inputPath)
	if err != nil {
		return fmt.Errorf("reading scoring file: %w", err)
	}

	reported := opts.sourceBuild
	if reported == "" {
		reported = f.Header.GenomeBuild()
	}
	pair, err := resolvePair(reported, viper.GetString("target_build"), f.HasColumn(scorefile.ColRsID))
	if err != nil {
		return err
	}

	pgsID := f.Header.PgsID()
	if pgsID == "" {
		pgsID = baseName(inputPath)
	}
	outPath := opts.output
	if outPath == "" {
		outPath = fmt.Sprintf("%s_hmPOS_%s.txt.gz", pgsID, build.Release(pair.Target))
	}

	logger.Info("harmonizing scoring file",
		zap.String("input", inputPath),
		zap.String("pgs_id", pgsID),
		zap.String("source_build", string(pair.Source)),
		zap.String("target_build", string(pair.Target)),
		zap.Int("variants", len(f.Records)))

	var store *duckdb.Store
	if viper.GetBool("cache.enabled") && !opts.noCache {
		store, err = duckdb.Open(viper.GetString("cache.db"))
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer store.Close()
	}

	var fp duckdb.FileFingerprint
	if store != nil {
		fp, err = duckdb.StatFile(inputPath)
		if err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
		if !opts.force {
			prev, err := store.LatestRun(fp, string(pair.Target))
			if err != nil {
				return fmt.Errorf("query run ledger: %w", err)
			}
			if prev != nil && prev.OutputPath == absPath(outPath) && fileExists(outPath) {
				logger.Info("input already harmonized, skipping (use --force to rerun)",
					zap.String("run_id", prev.ID.String()),
					zap.String("output", prev.OutputPath))
				return nil
			}
		}
	}

	run := duckdb.NewRun(pgsID, fp, string(pair.Source), string(pair.Target))

	hopts := harmonize.Options{
		Pair:    pair,
		Workers: viper.GetInt("workers"),
		Logger:  logger,
	}

	if f.HasColumn(scorefile.ColRsID) {
		records := f.Records
		if pair.Source != "" && pair.Identity() {
			records = unpositioned(records)
		}
		if len(records) > 0 {
			table, err := lookupVariants(ctx, records, pair.Target, store)
			if err != nil {
				return err
			}
			if table != nil {
				hopts.Lookup = table
			}
		}
	}

	if pair.Source != "" && !pair.Identity() &&
		f.HasColumn(scorefile.ColChrName) && f.HasColumn(scorefile.ColChrPosition) {
		src := liftover.NewFileChainSource(viper.GetString("chains.dir"))
		src.BaseURL = viper.GetString("chains.url")
		src.Logger = logger
		conv, err := liftover.NewConverter(ctx, pair, src)
		if err != nil {
			return err
		}
		conv.SetLogger(logger)
		logger.Info("using liftover chain", zap.String("chain", conv.ChainName()))
		hopts.Converter = conv
	}

	h := harmonize.NewHarmonizer(hopts)
	fm := harmonize.NewFormatter(f.Columns, harmonize.FormatOptions{
		VariantID:     idSource,
		ReportedBuild: f.Header["genome_build"],
		AssumedBuild:  opts.sourceBuild,
	})

	w, err := scorefile.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	header := scorefile.HarmonizedHeader(f.Header, build.Release(pair.Target), time.Now())
	if err := w.WriteHeader(header, fm.Columns()); err != nil {
		w.Close()
		return fmt.Errorf("writing header: %w", err)
	}

	summary, err := h.HarmonizeAll(ctx, f.Records, fm, w)
	if err != nil {
		w.Close()
		return fmt.Errorf("harmonizing: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}

	if store != nil {
		run.OutputPath = absPath(outPath)
		run.FinishedAt = time.Now().UTC()
		run.Summary = summary
		if err := store.RecordRun(run); err != nil {
			return fmt.Errorf("recording run: %w", err)
		}
		logger.Debug("recorded run", zap.String("run_id", run.ID.String()))
	}
	return nil
}

// resolvePair normalizes the reported and target builds. A file without a
// reported build can only be harmonized by rsID lookup.
func resolvePair(reported, target string, hasRsID bool) (build.Pair, error) {
	if !build.IsReported(reported) {
		if !hasRsID {
			return build.Pair{}, fmt.Errorf("genome build not reported and no %s column to look up", scorefile.ColRsID)
		}
		dst, ok := build.Normalize(target)
		if !ok {
			return build.Pair{}, &build.UnknownBuildError{Side: build.Destination, Value: target}
		}
		return build.Pair{Target: dst}, nil
	}
	return build.Resolve(reported, target)
}

// lookupVariants resolves every rsID of the file in one batched call,
// through the DuckDB cache when a store is open.
func lookupVariants(ctx context.Context, records []scorefile.Record, target build.Build, store *duckdb.Store) (ensembl.Table, error) {
	var baseURL string
	switch target {
	case build.Hg38:
		baseURL = viper.GetString("ensembl.url")
	case build.Hg19:
		baseURL = viper.GetString("ensembl.grch37_url")
	default:
		logger.Warn("no Ensembl server for target build, using liftover only",
			zap.String("target_build", string(target)))
		return nil, nil
	}

	client := ensembl.NewClient(ensembl.Options{
		BaseURL:     baseURL,
		Timeout:     viper.GetDuration("ensembl.timeout"),
		MaxRetries:  uint64(viper.GetInt("ensembl.max_retries")),
		BatchSize:   viper.GetInt("ensembl.batch_size"),
		Concurrency: viper.GetInt("ensembl.concurrency"),
		Logger:      logger,
	})

	var fetcher duckdb.Fetcher = client
	if store != nil {
		cached := duckdb.NewCachedLookup(store, client, string(target))
		cached.SetLogger(logger)
		fetcher = cached
	}

	ids := harmonize.LookupIDs(records)
	table, err := fetcher.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ensembl lookup: %w", err)
	}
	logger.Info("rsID lookup table ready",
		zap.Int("queried", len(ids)),
		zap.Int("found", len(table)))
	return table, nil
}

// unpositioned returns the records missing a reported coordinate. With
// identical builds only these need a lookup.
func unpositioned(records []scorefile.Record) []scorefile.Record {
	var out []scorefile.Record
	for _, r := range records {
		_, hasChr := r.Value(scorefile.ColChrName)
		_, hasPos := r.Value(scorefile.ColChrPosition)
		if !hasChr || !hasPos {
			out = append(out, r)
		}
	}
	return out
}

func baseName(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".gz", ".txt", ".tsv"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func absPath(path string) string {
	if path == "-" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
