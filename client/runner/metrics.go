package runner

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// ResultLabel is the first column of every result row
const ResultLabel = "DelegationServer"

// Phase names a stage of the run
type Phase string

const (
	PhasePrefill Phase = "prefill"
	PhaseMix     Phase = "mix"
)

// WorkerStats counts what one worker did during one phase
type WorkerStats struct {
	Worker  int
	Phase   Phase
	Ops     int // operations sent
	Skipped int // mix slots that emitted nothing
	Batches int // frames exchanged, close frame excluded
	Elapsed time.Duration
}

// Result is the outcome of one benchmark run
type Result struct {
	RunID      string
	Seed       int64
	Capacity   int
	Threads    int
	TotalOps   int
	Elapsed    time.Duration
	Throughput float64
	Workers    []WorkerStats
}

// Throughput reports capacity / (elapsed seconds × 1e6).
//
// The numerator is the declared capacity, not the number of operations sent,
// so the figure only equals Mops/s when the two coincide. See OpsThroughput.
func Throughput(capacity int, elapsed time.Duration) float64 {
	return float64(capacity) / (elapsed.Seconds() * 1e6)
}

// EmittedOps sums the operations sent during the timed phase
func (r *Result) EmittedOps() int {
	n := 0
	for _, w := range r.Workers {
		if w.Phase == PhaseMix {
			n += w.Ops
		}
	}
	return n
}

// OpsThroughput is the measured rate in million operations per second
func (r *Result) OpsThroughput() float64 {
	return float64(r.EmittedOps()) / (r.Elapsed.Seconds() * 1e6)
}

// ResultPath is where the rows of a delegation / experiment pair are appended
func ResultPath(dir string, delegation uint8, experiment WorkloadKind) string {
	return filepath.Join(dir, fmt.Sprintf("results_%d", delegation), string(experiment)+".csv")
}

// AppendResult appends label, capacity, threads, elapsed seconds, throughput
// and a zero latency column to the CSV file at path.
func AppendResult(path string, result *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open results file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	err = writer.Write([]string{
		ResultLabel,
		strconv.Itoa(result.Capacity),
		strconv.Itoa(result.Threads),
		strconv.FormatFloat(result.Elapsed.Seconds(), 'f', -1, 64),
		strconv.FormatFloat(result.Throughput, 'f', -1, 64),
		"0",
	})
	if err != nil {
		return fmt.Errorf("failed to write result row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush result row: %w", err)
	}
	return file.Sync()
}

// PhaseExporter writes one CSV row per worker and phase
type PhaseExporter struct {
	file   *os.File
	writer *csv.Writer
	runID  string
	mu     sync.Mutex
}

func NewPhaseExporter(filename, runID string) (*PhaseExporter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(file)
	err = writer.Write([]string{
		"run_id",
		"phase",
		"worker",
		"ops",
		"skipped",
		"batches",
		"elapsed_ms",
	})
	if err != nil {
		file.Close()
		return nil, err
	}

	return &PhaseExporter{
		file:   file,
		writer: writer,
		runID:  runID,
	}, nil
}

func (e *PhaseExporter) Add(stats WorkerStats) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.writer.Write([]string{
		e.runID,
		string(stats.Phase),
		strconv.Itoa(stats.Worker),
		strconv.Itoa(stats.Ops),
		strconv.Itoa(stats.Skipped),
		strconv.Itoa(stats.Batches),
		strconv.FormatFloat(float64(stats.Elapsed.Microseconds())/1000, 'f', 3, 64),
	})
}

func (e *PhaseExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.writer.Flush()
	if err := e.writer.Error(); err != nil {
		e.file.Close()
		return err
	}
	return e.file.Close()
}
