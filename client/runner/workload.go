package runner

import (
	"errors"
	"fmt"
	"math/rand"
)

// MixSize is the number of slots in one cycle of the operation mix
const MixSize = 100

// Operation is a tag of the operation mix
type Operation uint8

const (
	OpRead Operation = iota
	OpInsert
	OpRemove
	OpUpdate
	OpUpsert
)

func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	case OpUpdate:
		return "update"
	case OpUpsert:
		return "upsert"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

var (
	ErrMixNotHundred       = errors.New("mix percentages must sum to 100")
	ErrNegativePercentage  = errors.New("mix percentage must not be negative")
	ErrPrefillRange        = errors.New("prefill fraction must be within [0, 1]")
	ErrUnknownWorkload     = errors.New("unknown workload kind")
	ErrUpsertUnsupported   = errors.New("upsert operations are not encoded on the wire")
	ErrUnknownUpsertPolicy = errors.New("unknown upsert policy")
)

// WorkloadSpec holds the operation percentages and the prefill fraction
type WorkloadSpec struct {
	Read    int
	Insert  int
	Remove  int
	Update  int
	Upsert  int
	Prefill float64
}

// Validate checks the percentages sum to exactly MixSize
func (w WorkloadSpec) Validate() error {
	for _, p := range []int{w.Read, w.Insert, w.Remove, w.Update, w.Upsert} {
		if p < 0 {
			return fmt.Errorf("%w: %+v", ErrNegativePercentage, w)
		}
	}
	if sum := w.Read + w.Insert + w.Remove + w.Update + w.Upsert; sum != MixSize {
		return fmt.Errorf("%w: got %d", ErrMixNotHundred, sum)
	}
	if w.Prefill < 0 || w.Prefill > 1 {
		return fmt.Errorf("%w: got %v", ErrPrefillRange, w.Prefill)
	}
	return nil
}

// PrefillTarget is the number of keys inserted before the timed phase
func (w WorkloadSpec) PrefillTarget(capacity int) int {
	return int(float64(capacity) * w.Prefill)
}

// WorkloadKind names a predefined workload
type WorkloadKind string

const (
	ReadHeavy   WorkloadKind = "ReadHeavy"   // 98% reads
	InsertHeavy WorkloadKind = "InsertHeavy" // 80% inserts, empty table
	UpdateHeavy WorkloadKind = "UpdateHeavy" // 50% updates
	Uniform     WorkloadKind = "Uniform"     // 20% of every operation
	Custom      WorkloadKind = "Custom"      // percentages taken from the configuration
)

// WorkloadKinds lists the accepted kinds in display order
var WorkloadKinds = []WorkloadKind{ReadHeavy, InsertHeavy, UpdateHeavy, Uniform, Custom}

// Preset returns the workload of a predefined kind
func Preset(kind WorkloadKind) (WorkloadSpec, error) {
	switch kind {
	case ReadHeavy:
		return WorkloadSpec{Read: 98, Insert: 1, Remove: 1, Prefill: 0.75}, nil
	case InsertHeavy:
		return WorkloadSpec{Read: 10, Insert: 80, Remove: 10}, nil
	case UpdateHeavy:
		return WorkloadSpec{Read: 35, Insert: 5, Remove: 5, Update: 50, Upsert: 5, Prefill: 0.75}, nil
	case Uniform:
		return WorkloadSpec{Read: 20, Insert: 20, Remove: 20, Update: 20, Upsert: 20, Prefill: 0.75}, nil
	default:
		return WorkloadSpec{}, fmt.Errorf("%w: %q", ErrUnknownWorkload, kind)
	}
}

// UpsertPolicy decides what happens with upsert slots of the mix, which
// have no wire encoding.
type UpsertPolicy string

const (
	// UpsertReject refuses workloads containing upserts
	UpsertReject UpsertPolicy = "reject"
	// UpsertSkip keeps upsert slots as no-ops that emit nothing
	UpsertSkip UpsertPolicy = "skip"
)

// CheckUpserts applies policy to w
func (p UpsertPolicy) CheckUpserts(w WorkloadSpec) error {
	switch p {
	case UpsertReject:
		if w.Upsert > 0 {
			return fmt.Errorf("%w: workload has %d%% upserts, use the skip policy to run it anyway", ErrUpsertUnsupported, w.Upsert)
		}
		return nil
	case UpsertSkip:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownUpsertPolicy, p)
	}
}

// Mix is the shuffled 100-slot operation sequence shared read-only by all workers
type Mix []Operation

// NewMix lays out the percentages in tag order and shuffles them with rg.
func NewMix(w WorkloadSpec, rg *rand.Rand) (Mix, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	mix := make(Mix, 0, MixSize)
	for _, part := range []struct {
		op    Operation
		count int
	}{
		{OpRead, w.Read},
		{OpInsert, w.Insert},
		{OpRemove, w.Remove},
		{OpUpdate, w.Update},
		{OpUpsert, w.Upsert},
	} {
		for range part.count {
			mix = append(mix, part.op)
		}
	}

	rg.Shuffle(len(mix), func(i, j int) {
		mix[i], mix[j] = mix[j], mix[i]
	})
	return mix, nil
}

// At returns the tag of the i-th slot, cycling over the mix
func (m Mix) At(i int) Operation {
	return m[i%len(m)]
}

func (m Mix) Count(op Operation) int {
	n := 0
	for _, o := range m {
		if o == op {
			n++
		}
	}
	return n
}
