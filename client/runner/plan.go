package runner

import (
	"errors"
	"fmt"
	"math/rand"

	generator "kvbench/data-generator"
)

// opsFactor scales the operation count relative to the capacity
const opsFactor = 1

var ErrKeySpaceTooSmall = errors.New("key shard per worker too small")

// Plan is everything derived from the configuration before any connection
// is made.
type Plan struct {
	Capacity         int
	TotalOps         int
	OpsPerThread     int
	Prefill          int
	PrefillPerThread int
	KeysPerThread    int
	Mix              Mix
	Shards           [][]uint64
}

// NewPlan validates cfg and derives the run parameters. The mix is shuffled
// first and the worker shards seeded afterwards, both from rg.
func NewPlan(cfg *BenchmarkRunConfig, rg *rand.Rand) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	capacity := cfg.Capacity()
	totalOps := capacity * opsFactor
	threads := cfg.Threads

	mix, err := NewMix(cfg.Workload, rg)
	if err != nil {
		return nil, err
	}

	prefill := cfg.Workload.PrefillTarget(capacity)
	// The mix is cycled at most ceil(totalOps/100) times, which bounds the
	// number of inserts. Rounding up to a power of two lets the LCG cycle
	// over the whole shard.
	maxInsertOps := ceilDiv(totalOps, MixSize) * (cfg.Workload.Insert + cfg.Workload.Upsert)
	insertKeys := max(capacity, maxInsertOps) + prefill
	keysPerThread := nextPowerOfTwo(ceilDiv(insertKeys, threads))
	if keysPerThread <= 4 {
		return nil, fmt.Errorf("%w: %d keys for %d threads, lower the thread count or raise the capacity",
			ErrKeySpaceTooSmall, keysPerThread, threads)
	}

	shards, err := generator.NewGenerator(rg).GenerateKeyShards(threads, keysPerThread)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Capacity:         capacity,
		TotalOps:         totalOps,
		OpsPerThread:     totalOps / threads,
		Prefill:          prefill,
		PrefillPerThread: prefill / threads,
		KeysPerThread:    keysPerThread,
		Mix:              mix,
		Shards:           shards,
	}, nil
}
