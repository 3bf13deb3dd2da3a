package runner

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"kvbench/client/logger"
	"kvbench/client/wire"

	"github.com/google/uuid"
	"github.com/marusama/cyclicbarrier"
	"golang.org/x/sync/errgroup"
)

// BenchmarkRunner manages the benchmark execution
type BenchmarkRunner struct {
	config *BenchmarkRunConfig
	logger *logger.Logger
	dialer *Dialer
	runID  string
	seed   int64
}

func NewBenchmarkRunner(config *BenchmarkRunConfig, log *logger.Logger) (*BenchmarkRunner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	runID := uuid.NewString()
	log = log.With("run_id", runID)

	return &BenchmarkRunner{
		config: config,
		logger: log,
		dialer: &Dialer{
			Addr:    config.Endpoint,
			Timeout: config.DialTimeout,
			Logger:  log,
		},
		runID: runID,
		seed:  seed,
	}, nil
}

func (r *BenchmarkRunner) RunID() string { return r.runID }
func (r *BenchmarkRunner) Seed() int64   { return r.seed }

// Run executes setup, prefill and the timed mix. Any failed assertion or
// transport error aborts the whole run and is returned.
func (r *BenchmarkRunner) Run(ctx context.Context) (*Result, error) {
	r.logger.Infow("Generating run plan",
		"experiment", r.config.Experiment,
		"seed", r.seed,
		"capacity", r.config.Capacity(),
		"threads", r.config.Threads,
		"ops_st", r.config.OpsPerBatch)

	plan, err := NewPlan(r.config, rand.New(rand.NewSource(r.seed)))
	if err != nil {
		return nil, fmt.Errorf("failed to plan run: %w", err)
	}
	r.logger.Infow("Generated operation mix and key space",
		"total_ops", plan.TotalOps,
		"ops_per_thread", plan.OpsPerThread,
		"prefill", plan.Prefill,
		"keys_per_thread", plan.KeysPerThread)

	var exporter *PhaseExporter
	if r.config.PhaseMetricsFile != "" {
		exporter, err = NewPhaseExporter(r.config.PhaseMetricsFile, r.runID)
		if err != nil {
			return nil, fmt.Errorf("failed to create phase exporter: %w", err)
		}
		defer func() {
			if err := exporter.Close(); err != nil {
				r.logger.Errorw("Failed to close phase exporter", "error", err)
			}
		}()
	}

	err = r.dialer.Register(ctx, wire.Registration{
		Delegation:  r.config.Delegation,
		Capacity:    plan.Capacity,
		Threads:     r.config.Threads,
		OpsPerBatch: r.config.OpsPerBatch,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Infow("Starting prefill", "prefill_per_thread", plan.PrefillPerThread)
	prefillStats, err := r.prefill(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("prefill failed: %w", err)
	}
	r.logger.Infow("Done prefilling")

	// fresh sockets so nothing buffered during prefill leaks into the timing
	sessions, err := r.dialAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reconnect workers: %w", err)
	}

	r.logger.Infow("Starting workload mix")
	elapsed, mixStats, err := r.runMix(ctx, plan, sessions)
	if err != nil {
		return nil, fmt.Errorf("workload mix failed: %w", err)
	}

	result := &Result{
		RunID:      r.runID,
		Seed:       r.seed,
		Capacity:   plan.Capacity,
		Threads:    r.config.Threads,
		TotalOps:   plan.TotalOps,
		Elapsed:    elapsed,
		Throughput: Throughput(plan.Capacity, elapsed),
		Workers:    append(prefillStats, mixStats...),
	}

	if exporter != nil {
		for _, stats := range result.Workers {
			if err := exporter.Add(stats); err != nil {
				r.logger.Errorw("Failed to export phase metric", "error", err)
			}
		}
	}

	r.logger.Infow("Workload mix done",
		"elapsed", elapsed,
		"throughput", result.Throughput,
		"emitted_ops", result.EmittedOps(),
		"ops_throughput", result.OpsThroughput())
	return result, nil
}

func (r *BenchmarkRunner) prefill(ctx context.Context, plan *Plan) ([]WorkerStats, error) {
	stats := make([]WorkerStats, r.config.Threads)
	eg, egCtx := errgroup.WithContext(ctx)

	for w, keys := range plan.Shards {
		eg.Go(func() error {
			s, err := r.prefillWorker(egCtx, w, keys[:plan.PrefillPerThread])
			stats[w] = s
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *BenchmarkRunner) prefillWorker(ctx context.Context, worker int, keys []uint64) (WorkerStats, error) {
	stats := WorkerStats{Worker: worker, Phase: PhasePrefill}
	start := time.Now()

	session, err := r.dialer.Dial(ctx, r.config.OpsPerBatch)
	if err != nil {
		return stats, err
	}
	stop := session.Watch(ctx)
	defer stop()

	batch := NewBatch(r.config.OpsPerBatch)
	for i, key := range keys {
		batch.Add(Step{Op: wire.Op{Code: wire.OpInsert, Key: key}, Expected: true}, i)
		if !batch.Full() && i != len(keys)-1 {
			continue
		}
		results, err := session.Exchange(batch.Ops())
		if err != nil {
			session.Abort()
			return stats, fmt.Errorf("worker %d: %w", worker, err)
		}
		if err := batch.Verify(worker, results); err != nil {
			session.Abort()
			return stats, err
		}
		stats.Ops += batch.Len()
		stats.Batches++
		batch.Reset()
	}

	if err := session.Close(); err != nil {
		return stats, fmt.Errorf("worker %d: %w", worker, err)
	}
	stats.Elapsed = time.Since(start)
	r.logger.Debugw("Prefill worker done", "worker", worker, "ops", stats.Ops, "batches", stats.Batches)
	return stats, nil
}

func (r *BenchmarkRunner) dialAll(ctx context.Context) ([]*Session, error) {
	sessions := make([]*Session, r.config.Threads)
	eg, egCtx := errgroup.WithContext(ctx)
	for w := range sessions {
		eg.Go(func() error {
			s, err := r.dialer.Dial(egCtx, r.config.OpsPerBatch)
			sessions[w] = s
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		for _, s := range sessions {
			if s != nil {
				s.Abort()
			}
		}
		return nil, err
	}
	return sessions, nil
}

// runMix times the mix phase with a double rendezvous on a cyclic barrier of
// threads+1 parties. The first release marks the start, when every worker is
// ready to issue its first operation. The second release marks the end, when
// every worker has finished, failed or panicked. A failing worker cancels the
// phase with its error as the cause, which breaks the barrier for everyone.
func (r *BenchmarkRunner) runMix(ctx context.Context, plan *Plan, sessions []*Session) (time.Duration, []WorkerStats, error) {
	mixCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	barrier := cyclicbarrier.New(r.config.Threads + 1)
	stats := make([]WorkerStats, r.config.Threads)
	eg, egCtx := errgroup.WithContext(mixCtx)

	for w, session := range sessions {
		eg.Go(func() error {
			s, err := r.mixWorker(egCtx, abort, w, session, plan, barrier)
			stats[w] = s
			return err
		})
	}

	var elapsed time.Duration
	berr := barrier.Await(mixCtx)
	if berr == nil {
		start := time.Now()
		berr = barrier.Await(mixCtx)
		elapsed = time.Since(start)
	}

	werr := eg.Wait()
	if cause := context.Cause(mixCtx); cause != nil {
		return 0, nil, cause
	}
	if werr != nil {
		return 0, nil, werr
	}
	if berr != nil {
		return 0, nil, fmt.Errorf("mix barrier: %w", berr)
	}
	return elapsed, stats, nil
}

func (r *BenchmarkRunner) mixWorker(ctx context.Context, abort context.CancelCauseFunc, worker int, session *Session, plan *Plan, barrier cyclicbarrier.CyclicBarrier) (stats WorkerStats, err error) {
	// second rendezvous, on every exit path
	defer func() {
		if err != nil {
			abort(err)
		}
		_ = barrier.Await(ctx)
	}()
	defer func() {
		if p := recover(); p != nil {
			session.Abort()
			err = fmt.Errorf("worker %d panicked: %v", worker, p)
		}
	}()
	stats = WorkerStats{Worker: worker, Phase: PhaseMix}
	if err = barrier.Await(ctx); err != nil {
		session.Abort()
		return stats, err
	}

	start := time.Now()
	stop := session.Watch(ctx)
	defer stop()

	oracle, err := NewKeySequence(plan.Shards[worker], plan.PrefillPerThread)
	if err != nil {
		session.Abort()
		return stats, fmt.Errorf("worker %d: %w", worker, err)
	}

	batch := NewBatch(r.config.OpsPerBatch)
	flush := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		results, err := session.Exchange(batch.Ops())
		if err != nil {
			return fmt.Errorf("worker %d: %w", worker, err)
		}
		if err := batch.Verify(worker, results); err != nil {
			return err
		}
		stats.Ops += batch.Len()
		stats.Batches++
		batch.Reset()
		return nil
	}

	for slot := range plan.OpsPerThread {
		step, ok, err := oracle.Next(plan.Mix.At(slot))
		if err != nil {
			session.Abort()
			return stats, fmt.Errorf("worker %d slot %d: %w", worker, slot, err)
		}
		if !ok {
			stats.Skipped++
			continue
		}
		batch.Add(step, slot)
		if batch.Full() {
			if err := flush(); err != nil {
				session.Abort()
				return stats, err
			}
		}
	}
	if batch.Len() > 0 {
		if err := flush(); err != nil {
			session.Abort()
			return stats, err
		}
	}

	if err := session.Close(); err != nil {
		return stats, fmt.Errorf("worker %d: %w", worker, err)
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}
