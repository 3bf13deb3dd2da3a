package runner

import (
	"fmt"

	"kvbench/client/wire"
)

// Batch queues up to opsSt operations for one exchange together with the
// outcomes expected for them. Expectations never leave the client.
type Batch struct {
	ops      []wire.Op
	expected []bool
	slots    []int
}

func NewBatch(opsSt int) *Batch {
	return &Batch{
		ops:      make([]wire.Op, 0, opsSt),
		expected: make([]bool, 0, opsSt),
		slots:    make([]int, 0, opsSt),
	}
}

// Add queues step, slot being its position in the worker's mix sequence
func (b *Batch) Add(step Step, slot int) {
	b.ops = append(b.ops, step.Op)
	b.expected = append(b.expected, step.Expected)
	b.slots = append(b.slots, slot)
}

func (b *Batch) Len() int         { return len(b.ops) }
func (b *Batch) Full() bool       { return len(b.ops) == cap(b.ops) }
func (b *Batch) Ops() []wire.Op   { return b.ops }
func (b *Batch) Expected() []bool { return b.expected }

func (b *Batch) Reset() {
	b.ops = b.ops[:0]
	b.expected = b.expected[:0]
	b.slots = b.slots[:0]
}

// Verify compares the server's outcomes with the expectations. results may
// be longer than the batch, the padding slots are ignored.
func (b *Batch) Verify(worker int, results []bool) error {
	if len(results) < len(b.ops) {
		return fmt.Errorf("worker %d: got %d results for %d operations", worker, len(results), len(b.ops))
	}
	for i, want := range b.expected {
		if results[i] != want {
			return &AssertionError{
				Worker:   worker,
				Slot:     b.slots[i],
				Op:       b.ops[i],
				Expected: want,
				Got:      results[i],
			}
		}
	}
	return nil
}

// AssertionError reports a server outcome that contradicts the key state
type AssertionError struct {
	Worker   int
	Slot     int
	Op       wire.Op
	Expected bool
	Got      bool
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("worker %d slot %d: %s of key %#x returned success=%v, expected %v",
		e.Worker, e.Slot, e.Op.Code, e.Op.Key, e.Got, e.Expected)
}
