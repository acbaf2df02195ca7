package harmonize

import (
	"context"
	"runtime"
	"sync"

	"github.com/inodb/pgs-harmonizer/internal/scorefile"
)

// WorkItem is a scoring file record tagged with its input position.
type WorkItem struct {
	Seq    int
	Record scorefile.Record
}

// WorkResult is the harmonized variant for the record at position Seq.
type WorkResult struct {
	Seq     int
	Variant *Variant
}

// feedRecords sends records as work items in input order until all are
// sent or ctx is done.
func feedRecords(ctx context.Context, records []scorefile.Record, buffer int) <-chan WorkItem {
	items := make(chan WorkItem, buffer)
	go func() {
		defer close(items)
		for i, r := range records {
			select {
			case items <- WorkItem{Seq: i, Record: r}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return items
}

// ParallelHarmonize harmonizes and strand-corrects work items on a pool of
// workers (runtime.NumCPU() when workers is 0). Results arrive out of
// order; OrderedCollect restores input order. Workers stop early when ctx
// is done.
func (h *Harmonizer) ParallelHarmonize(ctx context.Context, items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				v := h.Harmonize(item.Record)
				FixStrandFlip(v)
				select {
				case results <- WorkResult{Seq: item.Seq, Variant: v}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// OrderedCollect calls fn for each result in sequence-number order and
// blocks until results is closed. After fn fails the remaining results are
// drained so that producers can exit.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	next := 0

	for r := range results {
		pending[r.Seq] = r
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := fn(ready); err != nil {
				for range results {
				}
				return err
			}
		}
	}
	return nil
}
