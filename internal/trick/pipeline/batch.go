package pipeline

import (
	"context"

	"github.com/banshee-data/trick.report/internal/trick/pose"
	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome for one timeline of a batch.
type BatchResult struct {
	VideoID  string
	Analysis *Analysis
	Err      error
}

// AnalyzeBatch analyses timelines concurrently with at most workers in
// flight. A failing timeline does not stop the others; its error is in
// its BatchResult. Cancelling ctx stops timelines that have not started
// and returns ctx's error.
func (e *Engine) AnalyzeBatch(ctx context.Context, timelines []*pose.Timeline, workers int) ([]BatchResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]BatchResult, len(timelines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tl := range timelines {
		results[i].VideoID = tl.VideoID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			results[i].Analysis, results[i].Err = e.AnalyzeContext(gctx, tl)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
