package liftover

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/pgs-harmonizer/internal/build"
)

// ChainSource supplies the chain map for a build pair.
type ChainSource interface {
	Chain(ctx context.Context, pair build.Pair) (*ChainMap, error)
}

// Hit is one target locus for a converted position.
type Hit struct {
	Chrom  string // target chromosome without "chr" prefix
	Pos    int64  // 1-based target position
	Strand byte   // '+' or '-' relative to the source strand
	Score  int64  // score of the chain that produced the hit
}

// Result is the outcome of converting one position.
// Chrom and Pos hold the first hit; Count is the number of hits.
type Result struct {
	Chrom string
	Pos   int64
	Count int
	Hits  []Hit
}

// Found returns true if the position mapped to at least one target locus.
func (r Result) Found() bool {
	return r.Count > 0
}

// Ambiguous returns true if the position mapped to more than one target locus.
func (r Result) Ambiguous() bool {
	return r.Count > 1
}

// Converter converts coordinates for one resolved build pair.
type Converter struct {
	pair   build.Pair
	chains *ChainMap
	logger *zap.Logger
}

// NewConverter creates a converter for pair. Identical builds get a converter
// without a chain map; callers are expected to pass such data through as
// author-reported instead of converting it.
func NewConverter(ctx context.Context, pair build.Pair, src ChainSource) (*Converter, error) {
	c := &Converter{pair: pair, logger: zap.NewNop()}
	if pair.Identity() {
		return c, nil
	}

	m, err := src.Chain(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("acquire chain %s: %w", pair, err)
	}
	c.chains = m
	return c, nil
}

// NewConverterFromChain creates a converter around an already loaded chain map.
func NewConverterFromChain(pair build.Pair, m *ChainMap) *Converter {
	return &Converter{pair: pair, chains: m, logger: zap.NewNop()}
}

// SetLogger sets the logger for debug messages.
func (c *Converter) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Pair returns the build pair this converter was created for.
func (c *Converter) Pair() build.Pair {
	return c.pair
}

// ChainName describes the chain in use, or "" for identical builds.
func (c *Converter) ChainName() string {
	if c.chains == nil {
		return ""
	}
	return fmt.Sprintf("UCSC: %s to %s", c.pair.Source, c.pair.Target)
}

// Convert maps a 1-based position on chrom to the target build. When more
// than one target exists the hit from the highest scoring chain is reported
// first and Count reflects every hit. Converters for identical builds always
// return an empty result.
func (c *Converter) Convert(chrom string, pos int64) Result {
	if c.chains == nil || pos < 1 {
		return Result{}
	}

	locus := ucscChrom(chrom)
	idx, ok := c.chains.indexes[locus]
	if !ok {
		return Result{}
	}

	// Chain coordinates are 0-based.
	pos0 := pos - 1
	blocks := idx.findOverlaps(pos0)
	if len(blocks) == 0 {
		return Result{}
	}

	hits := make([]Hit, 0, len(blocks))
	for _, b := range blocks {
		q := b.qStart + (pos0 - b.start)
		if b.chain.qStrand == '-' {
			q = b.chain.qSize - 1 - q
		}
		hits = append(hits, Hit{
			Chrom:  ensemblChrom(b.chain.qName),
			Pos:    q + 1,
			Strand: b.chain.qStrand,
			Score:  b.chain.score,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > 1 {
		c.logger.Debug("ambiguous liftover",
			zap.String("chrom", chrom),
			zap.Int64("pos", pos),
			zap.Int("hits", len(hits)))
	}

	return Result{
		Chrom: hits[0].Chrom,
		Pos:   hits[0].Pos,
		Count: len(hits),
		Hits:  hits,
	}
}

// ucscChrom returns the chr-prefixed UCSC name for a chromosome.
func ucscChrom(chrom string) string {
	if strings.HasPrefix(chrom, "chr") {
		return chrom
	}
	if chrom == "MT" {
		return "chrM"
	}
	return "chr" + chrom
}

// ensemblChrom strips the chr prefix from a UCSC chromosome name.
func ensemblChrom(chrom string) string {
	if chrom == "chrM" {
		return "MT"
	}
	return strings.TrimPrefix(chrom, "chr")
}
