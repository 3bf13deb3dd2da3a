package runner

import (
	"errors"
	"fmt"
	"time"
)

// BenchmarkRunConfig holds all configuration parameters of one run
type BenchmarkRunConfig struct {
	Experiment WorkloadKind
	Workload   WorkloadSpec
	// UpsertPolicy decides whether upsert slots are refused or skipped
	UpsertPolicy UpsertPolicy

	// Server parameters
	Endpoint    string
	DialTimeout time.Duration
	Delegation  uint8

	// Size parameters
	CapacityLog2 int
	Threads      int
	OpsPerBatch  int

	// Seed of the master RNG, 0 picks one from the clock
	Seed int64

	// Output parameters
	ResultsDir       string
	PhaseMetricsFile string
}

var ErrInvalidRunConfig = errors.New("invalid run configuration")

// MaxCapacityLog2 keeps 2^capacity and the key shards addressable
const MaxCapacityLog2 = 40

func (c *BenchmarkRunConfig) Validate() error {
	switch {
	case c.Threads <= 0:
		return fmt.Errorf("%w: threads must be positive, got %d", ErrInvalidRunConfig, c.Threads)
	case c.OpsPerBatch <= 0:
		return fmt.Errorf("%w: ops per batch must be positive, got %d", ErrInvalidRunConfig, c.OpsPerBatch)
	case c.CapacityLog2 < 1 || c.CapacityLog2 > MaxCapacityLog2:
		return fmt.Errorf("%w: capacity log2 must be within [1, %d], got %d", ErrInvalidRunConfig, MaxCapacityLog2, c.CapacityLog2)
	case c.Endpoint == "":
		return fmt.Errorf("%w: endpoint is required", ErrInvalidRunConfig)
	}
	if err := c.Workload.Validate(); err != nil {
		return err
	}
	return c.UpsertPolicy.CheckUpserts(c.Workload)
}

// Capacity is the declared table capacity, 2^CapacityLog2
func (c *BenchmarkRunConfig) Capacity() int {
	return 1 << c.CapacityLog2
}
