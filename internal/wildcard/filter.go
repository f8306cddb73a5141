package wildcard

import (
	"context"

	"github.com/bios000/scouter/internal/massresolve"
	"github.com/bios000/scouter/internal/workpool"
)

const DefaultFilterWorkers = 32

// Filter drops records whose addresses all belong to sig. A nil sig
// returns records untouched. Order is preserved. The filter always runs
// to completion: ctx only carries values, its deadline is ignored.
func Filter(
	ctx context.Context,
	records []massresolve.Record,
	sig *Signature,
	workers int,
) []massresolve.Record {
	if sig == nil || len(records) == 0 {
		return records
	}
	if workers < 1 {
		workers = DefaultFilterWorkers
	}

	drop := make([]bool, len(records))
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	workpool.Run(context.WithoutCancel(ctx), idx, workers, func(_ context.Context, i int) {
		drop[i] = sig.Covers(records[i].A)
	})

	out := make([]massresolve.Record, 0, len(records))
	for i, rec := range records {
		if !drop[i] {
			out = append(out, rec)
		}
	}
	return out
}
