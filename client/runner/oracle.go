package runner

import (
	"errors"
	"fmt"

	"kvbench/client/wire"
)

var (
	ErrKeySpace      = errors.New("key shard size must be a power of two greater than 4")
	ErrPrefilled     = errors.New("prefilled count exceeds the key shard")
	ErrKeysExhausted = errors.New("key shard exhausted by inserts")
)

// Step is one emitted operation and the outcome the server must report
type Step struct {
	Op       wire.Op
	Expected bool
}

// KeySequence tracks which keys of a worker's shard are present on the server
// and picks the key of every operation so the outcome is known in advance.
//
// Keys [eraseSeq, insertSeq) are present, all others are absent. Reads and
// updates walk the shard with a full-period LCG over [0, nkeys).
// Invariant: 0 <= eraseSeq <= insertSeq <= nkeys.
type KeySequence struct {
	keys []uint64

	insertSeq int
	eraseSeq  int
	findSeq   int

	a, c, mask int
}

// NewKeySequence starts a sequence over keys whose first prefilled entries
// are already on the server.
func NewKeySequence(keys []uint64, prefilled int) (*KeySequence, error) {
	nkeys := len(keys)
	if nkeys <= 4 || !isPowerOfTwo(nkeys) {
		return nil, fmt.Errorf("%w: got %d", ErrKeySpace, nkeys)
	}
	if prefilled < 0 || prefilled > nkeys {
		return nil, fmt.Errorf("%w: %d of %d", ErrPrefilled, prefilled, nkeys)
	}
	return &KeySequence{
		keys:      keys,
		insertSeq: prefilled,
		a:         nkeys/2 + 1,
		c:         nkeys/4 - 1,
		mask:      nkeys - 1,
	}, nil
}

// Next consumes one mix slot. ok is false when the slot emits nothing: a read
// or update of an index that may have been erased, or an upsert. Next must be
// called exactly once per slot, in mix order.
func (s *KeySequence) Next(op Operation) (step Step, ok bool, err error) {
	switch op {
	case OpRead, OpUpdate:
		code := wire.OpRead
		if op == OpUpdate {
			code = wire.OpUpdate
		}
		if s.findSeq >= s.eraseSeq {
			step = Step{
				Op:       wire.Op{Code: code, Key: s.keys[s.findSeq]},
				Expected: s.findSeq < s.insertSeq,
			}
			ok = true
		}
		s.twist()

	case OpInsert:
		if s.insertSeq == len(s.keys) {
			return Step{}, false, fmt.Errorf("%w: %d keys inserted", ErrKeysExhausted, s.insertSeq)
		}
		step = Step{Op: wire.Op{Code: wire.OpInsert, Key: s.keys[s.insertSeq]}, Expected: true}
		ok = true
		s.insertSeq++

	case OpRemove:
		if s.eraseSeq == s.insertSeq {
			// nothing is present, removing any key must fail
			step = Step{Op: wire.Op{Code: wire.OpRemove, Key: s.keys[s.findSeq]}, Expected: false}
			s.twist()
		} else {
			step = Step{Op: wire.Op{Code: wire.OpRemove, Key: s.keys[s.eraseSeq]}, Expected: true}
			s.eraseSeq++
		}
		ok = true

	case OpUpsert:

	default:
		return Step{}, false, fmt.Errorf("unknown operation %v", op)
	}
	return step, ok, nil
}

func (s *KeySequence) twist() {
	s.findSeq = (s.a*s.findSeq + s.c) & s.mask
}

func (s *KeySequence) InsertSeq() int { return s.insertSeq }
func (s *KeySequence) EraseSeq() int  { return s.eraseSeq }
func (s *KeySequence) FindSeq() int   { return s.findSeq }
func (s *KeySequence) NumKeys() int   { return len(s.keys) }
