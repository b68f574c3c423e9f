package export

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ProgressFunc is called after each build finishes.
type ProgressFunc func(done, total int, path string, err error)

// Result is the outcome of one build in a batch.
type Result struct {
	Path     string
	Artifact *Artifact
	Err      error
}

// Batch exports many sources concurrently. Every build has its own worker
// and engine, so one failing build never affects another.
type Batch struct {
	Exporter    *Exporter
	Concurrency int
	OnProgress  ProgressFunc
}

// NewBatch creates a Batch running at most concurrency builds at a time.
func NewBatch(x *Exporter, concurrency int, onProgress ProgressFunc) *Batch {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batch{Exporter: x, Concurrency: concurrency, OnProgress: onProgress}
}

// Run exports paths and returns one result per path, in input order.
func (b *Batch) Run(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))
	total := len(paths)
	if total == 0 {
		return results
	}

	sem := make(chan struct{}, b.Concurrency)
	var processed int64
	report := func(i int) {
		count := atomic.AddInt64(&processed, 1)
		if b.OnProgress != nil {
			b.OnProgress(int(count), total, results[i].Path, results[i].Err)
		}
	}

	var wg sync.WaitGroup
	for i, path := range paths {
		results[i].Path = path

		acquired := false
		if ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case sem <- struct{}{}:
				acquired = true
			}
		}
		if !acquired {
			results[i].Err = fmt.Errorf("export %s: %w", path, ctx.Err())
			report(i)
			continue
		}

		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("export %s: panic: %v", path, r)
				}
				report(i)
			}()

			results[i].Artifact, results[i].Err = b.Exporter.Export(ctx, path)
		}(i, path)
	}

	wg.Wait()
	return results
}

// Failed counts results with errors.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
