// Package liftover converts genomic coordinates between builds using UCSC
// chain files.
package liftover

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// chain is the header of one chain record. Source ("t") fields describe the
// build being converted from, query ("q") fields the build being converted to.
type chain struct {
	score   int64
	tName   string
	qName   string
	qSize   int64
	qStrand byte
	id      string
}

// ChainMap is a parsed chain file indexed by source chromosome.
type ChainMap struct {
	Name    string
	indexes map[string]*blockIndex
	chains  int
}

// ChainCount returns the number of chain records loaded.
func (m *ChainMap) ChainCount() int {
	return m.chains
}

// Chromosomes returns the number of source chromosomes with aligned blocks.
func (m *ChainMap) Chromosomes() int {
	return len(m.indexes)
}

// LoadChainFile parses a chain file from disk. Gzipped files are detected by
// their magic bytes.
func LoadChainFile(path string) (*ChainMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br

	// Check for gzip magic number (0x1f, 0x8b)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	m, err := ReadChain(r)
	if err != nil {
		return nil, err
	}
	m.Name = path
	return m, nil
}

// ReadChain parses chain-format data.
//
//	chain score tName tSize tStrand tStart tEnd qName qSize qStrand qStart qEnd id
//	size dt dq
//	...
//	size
func ReadChain(r io.Reader) (*ChainMap, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	blocks := make(map[string][]*block)
	m := &ChainMap{}

	var (
		cur        *chain
		tPos, qPos int64
		lineNumber int
	)

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if fields[0] == "chain" {
			if len(fields) < 12 {
				return nil, &ParseError{Line: lineNumber, Message: fmt.Sprintf("chain header has %d fields, expected at least 12", len(fields))}
			}
			c, t, q, err := parseChainHeader(fields)
			if err != nil {
				return nil, &ParseError{Line: lineNumber, Message: err.Error()}
			}
			cur, tPos, qPos = c, t, q
			m.chains++
			continue
		}

		if cur == nil {
			return nil, &ParseError{Line: lineNumber, Message: "alignment data before chain header"}
		}

		nums := make([]int64, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, &ParseError{Line: lineNumber, Message: fmt.Sprintf("invalid alignment value: %s", f)}
			}
			nums[i] = n
		}

		size := nums[0]
		blocks[cur.tName] = append(blocks[cur.tName], &block{
			start:  tPos,
			end:    tPos + size,
			qStart: qPos,
			chain:  cur,
		})

		switch len(nums) {
		case 3:
			tPos += size + nums[1]
			qPos += size + nums[2]
		case 1:
			// Last block of the chain.
			cur = nil
		default:
			return nil, &ParseError{Line: lineNumber, Message: fmt.Sprintf("expected 1 or 3 alignment values, found %d", len(nums))}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan chain file: %w", err)
	}

	m.indexes = make(map[string]*blockIndex, len(blocks))
	for chrom, bs := range blocks {
		m.indexes[chrom] = buildBlockIndex(bs)
	}
	return m, nil
}

func parseChainHeader(fields []string) (c *chain, tStart, qStart int64, err error) {
	score, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		// Scores are occasionally written as floats.
		f, ferr := strconv.ParseFloat(fields[1], 64)
		if ferr != nil {
			return nil, 0, 0, fmt.Errorf("invalid chain score: %s", fields[1])
		}
		score = int64(f)
	}
	tStart, err = strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("invalid tStart: %s", fields[5])
	}
	qSize, err := strconv.ParseInt(fields[8], 10, 64)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("invalid qSize: %s", fields[8])
	}
	qStart, err = strconv.ParseInt(fields[10], 10, 64)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("invalid qStart: %s", fields[10])
	}
	if fields[9] != "+" && fields[9] != "-" {
		return nil, 0, 0, fmt.Errorf("invalid qStrand: %s", fields[9])
	}

	c = &chain{
		score:   score,
		tName:   fields[2],
		qName:   fields[7],
		qSize:   qSize,
		qStrand: fields[9][0],
	}
	if len(fields) > 12 {
		c.id = fields[12]
	}
	return c, tStart, qStart, nil
}

// ParseError represents an error during chain parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("chain parse error at line %d: %s", e.Line, e.Message)
}
