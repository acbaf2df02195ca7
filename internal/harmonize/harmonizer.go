package harmonize

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/pgs-harmonizer/internal/build"
	"github.com/inodb/pgs-harmonizer/internal/ensembl"
	"github.com/inodb/pgs-harmonizer/internal/liftover"
	"github.com/inodb/pgs-harmonizer/internal/scorefile"
)

const progressInterval = 100000

// Converter converts a reported position to the target build.
type Converter interface {
	Convert(chrom string, pos int64) liftover.Result
}

// Lookup resolves an rsID to a canonical reference record.
type Lookup interface {
	Canonical(id string, chromosomes []string) (ensembl.Record, bool)
}

// RowWriter receives rendered output rows.
type RowWriter interface {
	WriteRow(values []string) error
}

// Options configures a Harmonizer. Converter and Lookup are optional and
// must be safe for concurrent reads.
type Options struct {
	// Pair is the resolved build pair. Source is empty when the scoring
	// file does not report a build.
	Pair        build.Pair
	Converter   Converter
	Lookup      Lookup
	Chromosomes []string
	// Workers is the number of harmonization goroutines; 1 processes rows
	// sequentially and 0 uses one per CPU.
	Workers int
	Logger  *zap.Logger
}

// Harmonizer maps scoring file records onto the target build.
type Harmonizer struct {
	converter      Converter
	lookup         Lookup
	chromosomes    []string
	workers        int
	authorReported bool
	logger         *zap.Logger
}

// NewHarmonizer creates a harmonizer.
func NewHarmonizer(opts Options) *Harmonizer {
	h := &Harmonizer{
		converter:      opts.Converter,
		lookup:         opts.Lookup,
		chromosomes:    opts.Chromosomes,
		workers:        opts.Workers,
		authorReported: opts.Pair.Source != "" && opts.Pair.Identity(),
		logger:         opts.Logger,
	}
	if h.chromosomes == nil {
		h.chromosomes = ensembl.DefaultChromosomes()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// SetLogger sets the logger for progress messages.
func (h *Harmonizer) SetLogger(l *zap.Logger) {
	h.logger = l
}

// Harmonize maps one record. Identical builds keep the reported coordinates.
// Otherwise the rsID lookup is tried first, then liftover of the reported
// coordinates. Strand flips are not corrected here.
func (h *Harmonizer) Harmonize(r scorefile.Record) *Variant {
	v := NewVariant(r)
	chr, hasChr := r.Value(scorefile.ColChrName)
	pos, hasPos := r.Value(scorefile.ColChrPosition)
	rsID, hasRsID := r.Value(scorefile.ColRsID)

	if h.authorReported && hasChr && hasPos {
		v.Source = SourceAuthorReported
		v.Status = StatusAuthorReported
		v.HmChr, v.HmPos = chr, pos
		if hasRsID {
			v.HmRsID = rsID
		}
		return v
	}

	if h.lookup != nil && hasRsID {
		if rec, ok := h.lookup.Canonical(rsID, h.chromosomes); ok {
			v.Source = SourceEnsembl
			v.HmChr = rec.Chrom
			v.HmPos = strconv.FormatInt(rec.Pos, 10)
			v.HmRsID = rec.RsID
			v.HmVID = rec.VariantID
			v.Status = CompareAlleles(v.Alleles(), rec.Alleles).Classify(v.Alleles())
			return v
		}
	}

	if h.converter != nil && hasChr && hasPos {
		v.Source = SourceLiftover
		p, err := strconv.ParseInt(strings.TrimSpace(pos), 10, 64)
		if err != nil {
			return v
		}
		res := h.converter.Convert(chr, p)
		switch {
		case res.Count == 0:
			return v
		case res.Count == 1:
			v.Status = StatusLiftover
		default:
			v.Status = StatusLiftoverAmbiguous
		}
		v.HmChr = res.Chrom
		v.HmPos = strconv.FormatInt(res.Pos, 10)
		if hasRsID {
			v.HmRsID = rsID
		}
		return v
	}

	return v
}

// Summary counts the outcome of a run.
type Summary struct {
	Total          int
	ByLookup       int
	ByLiftover     int
	AuthorReported int
	ByNone         int
	Passed         int
	Failed         int
	FlipsFixed     int
	ByCode         map[int]int
}

func (s *Summary) add(v *Variant) {
	s.Total++
	switch v.Source {
	case SourceEnsembl:
		s.ByLookup++
	case SourceLiftover:
		s.ByLiftover++
	case SourceAuthorReported:
		s.AuthorReported++
	default:
		s.ByNone++
	}
	if v.Passed() {
		s.Passed++
	} else {
		s.Failed++
	}
	if v.FlipFixed {
		s.FlipsFixed++
	}
	if s.ByCode == nil {
		s.ByCode = make(map[int]int)
	}
	s.ByCode[v.Status.Code()]++
}

// HarmonizeAll harmonizes records and writes one formatted row per record
// to w, in input order.
func (h *Harmonizer) HarmonizeAll(ctx context.Context, records []scorefile.Record, fm *Formatter, w RowWriter) (Summary, error) {
	s := Summary{ByCode: make(map[int]int)}

	emit := func(v *Variant) error {
		row, err := fm.Format(v)
		if err != nil {
			return fmt.Errorf("format line %d: %w", v.Record.Line, err)
		}
		if err := w.WriteRow(row); err != nil {
			return fmt.Errorf("write row for line %d: %w", v.Record.Line, err)
		}
		s.add(v)
		if s.Total%progressInterval == 0 {
			h.logger.Info("harmonization progress",
				zap.Int("done", s.Total),
				zap.Int("total", len(records)))
		}
		return nil
	}

	if h.workers == 1 {
		variants := make([]*Variant, len(records))
		for i, r := range records {
			if err := ctx.Err(); err != nil {
				return s, err
			}
			variants[i] = h.Harmonize(r)
		}
		FixStrandFlips(variants)
		for _, v := range variants {
			if err := emit(v); err != nil {
				return s, err
			}
		}
		h.logSummary(s)
		return s, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := feedRecords(ctx, records, 2*max(h.workers, 1))
	results := h.ParallelHarmonize(ctx, items, h.workers)
	if err := OrderedCollect(results, func(r WorkResult) error {
		if err := emit(r.Variant); err != nil {
			cancel()
			return err
		}
		return nil
	}); err != nil {
		return s, err
	}
	if err := ctx.Err(); err != nil {
		return s, err
	}

	h.logSummary(s)
	return s, nil
}

func (h *Harmonizer) logSummary(s Summary) {
	if s.Total == 0 {
		h.logger.Info("0 variants processed")
		return
	}
	h.logger.Info("harmonization complete",
		zap.Int("variants", s.Total),
		zap.Int("mapped_by_rsid", s.ByLookup),
		zap.Int("mapped_by_liftover", s.ByLiftover),
		zap.Int("author_reported", s.AuthorReported),
		zap.Int("not_mapped", s.ByNone),
		zap.Int("passed", s.Passed),
		zap.Int("failed", s.Failed),
		zap.Int("strand_flips_fixed", s.FlipsFixed))
}

// LookupIDs returns the distinct rsIDs of records in first-seen order.
// Identifiers that do not start with "rs" are skipped.
func LookupIDs(records []scorefile.Record) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range records {
		id, ok := r.Value(scorefile.ColRsID)
		if !ok || !strings.HasPrefix(id, "rs") || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
