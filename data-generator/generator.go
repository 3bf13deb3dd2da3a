// Description: This package generates the per-worker key shards used by the benchmark.
// Every shard is drawn from its own RNG whose seed comes from one master RNG, so a
// run is fully reproducible from the master seed.
package generator

import (
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

var ErrInvalidShard = errors.New("invalid key shard dimensions")

type Generator struct {
	rg *rand.Rand
}

func NewGenerator(rg *rand.Rand) *Generator {
	return &Generator{rg: rg}
}

// NewRand creates an independent deterministic RNG from a worker seed
func (g *Generator) NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// WorkerSeeds draws one seed per worker from the master RNG. The seeds are
// drawn sequentially so the assignment does not depend on scheduling.
func (g *Generator) WorkerSeeds(workers int) []int64 {
	seeds := make([]int64, workers)
	for i := range seeds {
		seeds[i] = g.rg.Int63()
	}
	return seeds
}

// GenerateKeys fills a shard of n 64-bit keys from rg
func GenerateKeys(rg *rand.Rand, n int) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = rg.Uint64()
	}
	return keys
}

// GenerateKeyShards returns one shard of keysPerWorker keys for every worker.
// Shards are generated concurrently, each from its own seeded RNG.
func (g *Generator) GenerateKeyShards(workers, keysPerWorker int) ([][]uint64, error) {
	if workers <= 0 || keysPerWorker <= 0 {
		return nil, fmt.Errorf("%w: %d workers, %d keys per worker", ErrInvalidShard, workers, keysPerWorker)
	}

	seeds := g.WorkerSeeds(workers)
	shards := make([][]uint64, workers)

	var eg errgroup.Group
	for i, seed := range seeds {
		eg.Go(func() error {
			shards[i] = GenerateKeys(g.NewRand(seed), keysPerWorker)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return shards, nil
}
