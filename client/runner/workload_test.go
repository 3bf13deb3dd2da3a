package runner

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestNewMixCounts(t *testing.T) {
	tests := []struct {
		name string
		spec WorkloadSpec
	}{
		{"read heavy", WorkloadSpec{Read: 98, Insert: 1, Remove: 1}},
		{"uniform", WorkloadSpec{Read: 20, Insert: 20, Remove: 20, Update: 20, Upsert: 20}},
		{"insert only", WorkloadSpec{Insert: 100}},
		{"no reads", WorkloadSpec{Insert: 50, Remove: 25, Update: 25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mix, err := NewMix(tt.spec, rand.New(rand.NewSource(1)))
			if err != nil {
				t.Fatalf("NewMix() error = %v", err)
			}
			if len(mix) != MixSize {
				t.Fatalf("len(mix) = %d, want %d", len(mix), MixSize)
			}
			want := map[Operation]int{
				OpRead:   tt.spec.Read,
				OpInsert: tt.spec.Insert,
				OpRemove: tt.spec.Remove,
				OpUpdate: tt.spec.Update,
				OpUpsert: tt.spec.Upsert,
			}
			for op, n := range want {
				if got := mix.Count(op); got != n {
					t.Errorf("Count(%v) = %d, want %d", op, got, n)
				}
			}
		})
	}
}

func TestNewMixRandomSpecs(t *testing.T) {
	rg := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		// split 100 into five random parts
		cuts := []int{0, rg.Intn(101), rg.Intn(101), rg.Intn(101), rg.Intn(101), 100}
		for a := 1; a < len(cuts); a++ {
			for b := a; b > 0 && cuts[b] < cuts[b-1]; b-- {
				cuts[b], cuts[b-1] = cuts[b-1], cuts[b]
			}
		}
		spec := WorkloadSpec{
			Read:   cuts[1] - cuts[0],
			Insert: cuts[2] - cuts[1],
			Remove: cuts[3] - cuts[2],
			Update: cuts[4] - cuts[3],
			Upsert: cuts[5] - cuts[4],
		}
		mix, err := NewMix(spec, rg)
		if err != nil {
			t.Fatalf("NewMix(%+v) error = %v", spec, err)
		}
		if len(mix) != MixSize || mix.Count(OpRead) != spec.Read || mix.Count(OpUpsert) != spec.Upsert {
			t.Fatalf("NewMix(%+v) produced wrong mix %v", spec, mix)
		}
	}
}

func TestNewMixDeterministic(t *testing.T) {
	spec := WorkloadSpec{Read: 40, Insert: 30, Remove: 20, Update: 10}
	m1, _ := NewMix(spec, rand.New(rand.NewSource(77)))
	m2, _ := NewMix(spec, rand.New(rand.NewSource(77)))
	if !reflect.DeepEqual(m1, m2) {
		t.Error("same seed produced different mixes")
	}
}

func TestNewMixRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec WorkloadSpec
		want error
	}{
		{"sum below 100", WorkloadSpec{Read: 50, Insert: 49}, ErrMixNotHundred},
		{"sum above 100", WorkloadSpec{Read: 99, Insert: 2}, ErrMixNotHundred},
		{"negative", WorkloadSpec{Read: 110, Remove: -10}, ErrNegativePercentage},
		{"prefill above one", WorkloadSpec{Read: 100, Prefill: 1.5}, ErrPrefillRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMix(tt.spec, rand.New(rand.NewSource(1))); !errors.Is(err, tt.want) {
				t.Errorf("NewMix() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrefillTarget(t *testing.T) {
	w := WorkloadSpec{Read: 100, Prefill: 0.75}
	if got := w.PrefillTarget(1 << 15); got != 24576 {
		t.Errorf("PrefillTarget() = %d, want 24576", got)
	}
	w.Prefill = 0.3
	if got := w.PrefillTarget(10); got != 3 {
		t.Errorf("PrefillTarget() = %d, want 3 (truncated)", got)
	}
}

func TestPresets(t *testing.T) {
	for _, kind := range WorkloadKinds {
		if kind == Custom {
			if _, err := Preset(kind); !errors.Is(err, ErrUnknownWorkload) {
				t.Errorf("Preset(Custom) error = %v, want ErrUnknownWorkload", err)
			}
			continue
		}
		w, err := Preset(kind)
		if err != nil {
			t.Fatalf("Preset(%s) error = %v", kind, err)
		}
		if err := w.Validate(); err != nil {
			t.Errorf("Preset(%s) invalid: %v", kind, err)
		}
	}
}

func TestUpsertPolicy(t *testing.T) {
	withUpserts := WorkloadSpec{Read: 95, Upsert: 5}
	if err := UpsertReject.CheckUpserts(withUpserts); !errors.Is(err, ErrUpsertUnsupported) {
		t.Errorf("reject policy error = %v, want ErrUpsertUnsupported", err)
	}
	if err := UpsertSkip.CheckUpserts(withUpserts); err != nil {
		t.Errorf("skip policy error = %v", err)
	}
	if err := UpsertReject.CheckUpserts(WorkloadSpec{Read: 100}); err != nil {
		t.Errorf("reject policy without upserts error = %v", err)
	}
	if err := UpsertPolicy("maybe").CheckUpserts(withUpserts); !errors.Is(err, ErrUnknownUpsertPolicy) {
		t.Errorf("unknown policy error = %v", err)
	}
}
