package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrConsecutiveBatchFailures is the fatal overflow of the per-round
// consecutive bad batch budget. It aborts the whole run: a sustained streak
// of failures means the upstream is down and hammering it helps nobody.
var ErrConsecutiveBatchFailures = errors.New("services: consecutive bad batch limit exceeded")

type batchFunc func(ctx context.Context, batch []string) error

// batchCollector runs a collection callback over fixed-size batches with a
// bounded retry protocol. A failed batch is deferred to the next round rather
// than aborting; rounds repeat until retryLimit is spent or nothing is left.
// Items still uncollected after the last round are returned as pending; they
// are picked up naturally by the next run because the "needs collection"
// queries re-derive the work list from persisted state.
type batchCollector struct {
	log              zerolog.Logger
	batchSize        int
	retryLimit       int
	consecutiveLimit int
}

func (c batchCollector) collect(ctx context.Context, items []string, fn batchFunc) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	batches := partition(items, c.batchSize)
	for round := 1; round <= c.retryLimit && len(batches) > 0; round++ {
		c.log.Debug().
			Int("round", round).
			Int("batch_size", c.batchSize).
			Int("batches", len(batches)).
			Msg("collecting batches")

		var bad [][]string
		consecutive := 0
		for i, batch := range batches {
			if err := ctx.Err(); err != nil {
				return flatten(append(bad, batches[i:]...)), fmt.Errorf("services: batch collection canceled: %w", err)
			}

			if err := fn(ctx, batch); err != nil {
				consecutive++
				bad = append(bad, batch)
				c.log.Warn().Err(err).
					Int("consecutive", consecutive).
					Msg("bad batch, will try again after")
				if consecutive > c.consecutiveLimit {
					return flatten(append(bad, batches[i+1:]...)),
						fmt.Errorf("%w: %d in a row", ErrConsecutiveBatchFailures, consecutive)
				}
				continue
			}
			consecutive = 0
		}
		batches = bad
	}

	return flatten(batches), nil
}

func partition(items []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	batches := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

func flatten(batches [][]string) []string {
	if len(batches) == 0 {
		return nil
	}
	var out []string
	for _, batch := range batches {
		out = append(out, batch...)
	}
	return out
}
