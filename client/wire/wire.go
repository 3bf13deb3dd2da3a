// Package wire implements the batch protocol spoken with the delegation server.
//
// A request frame carries exactly OpsPerBatch records of RecordSize bytes:
// one opcode byte followed by the key as a big-endian uint64. Unused records
// are zero-filled and a frame with no real record is the close signal for the
// connection. The server answers every frame with one status byte per record,
// 0 meaning success.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Opcode identifies the operation of one record
type Opcode uint8

const (
	OpIdle Opcode = iota
	OpRead
	OpInsert
	OpRemove
	OpUpdate
)

// RecordSize is the encoded size of one (opcode, key) record
const RecordSize = 9

var (
	ErrBatchOverflow = errors.New("batch holds more operations than ops per batch")
	ErrFrameSize     = errors.New("frame size does not match ops per batch")
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrRegistration  = errors.New("malformed registration line")
)

func (o Opcode) String() string {
	switch o {
	case OpIdle:
		return "idle"
	case OpRead:
		return "read"
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	case OpUpdate:
		return "update"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

// Valid reports whether o is part of the protocol vocabulary
func (o Opcode) Valid() bool {
	return o <= OpUpdate
}

// Op is a single keyed operation
type Op struct {
	Code Opcode
	Key  uint64
}

// FrameSize returns the request frame length for opsSt records
func FrameSize(opsSt int) int {
	return opsSt * RecordSize
}

// EncodeBatch encodes ops into a request frame of exactly FrameSize(opsSt)
// bytes. dst is reused when it is large enough.
func EncodeBatch(dst []byte, opsSt int, ops []Op) ([]byte, error) {
	if len(ops) > opsSt {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchOverflow, len(ops), opsSt)
	}
	size := FrameSize(opsSt)
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]
	for i, op := range ops {
		rec := dst[i*RecordSize : (i+1)*RecordSize]
		rec[0] = byte(op.Code)
		binary.BigEndian.PutUint64(rec[1:], op.Key)
	}
	clear(dst[len(ops)*RecordSize:])
	return dst, nil
}

// CloseFrame returns the all-zero frame that ends a session
func CloseFrame(opsSt int) []byte {
	return make([]byte, FrameSize(opsSt))
}

// DecodeBatch returns every record of frame, zero-filled ones included.
func DecodeBatch(frame []byte, opsSt int) ([]Op, error) {
	if len(frame) != FrameSize(opsSt) {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), FrameSize(opsSt))
	}
	ops := make([]Op, opsSt)
	for i := range ops {
		rec := frame[i*RecordSize : (i+1)*RecordSize]
		code := Opcode(rec[0])
		if !code.Valid() {
			return nil, fmt.Errorf("%w %d in record %d", ErrUnknownOpcode, rec[0], i)
		}
		ops[i] = Op{Code: code, Key: binary.BigEndian.Uint64(rec[1:])}
	}
	return ops, nil
}

// IsCloseFrame reports whether frame contains no real operation
func IsCloseFrame(frame []byte) bool {
	for i := 0; i < len(frame); i += RecordSize {
		if frame[i] != byte(OpIdle) {
			return false
		}
	}
	return true
}

// DecodeStatus converts response bytes to outcomes, a zero byte being success.
func DecodeStatus(buf []byte) []bool {
	results := make([]bool, len(buf))
	for i, code := range buf {
		results[i] = code == 0
	}
	return results
}

// EncodeStatus is the server side counterpart of DecodeStatus
func EncodeStatus(dst []byte, results []bool) []byte {
	if cap(dst) < len(results) {
		dst = make([]byte, len(results))
	}
	dst = dst[:len(results)]
	for i, ok := range results {
		if ok {
			dst[i] = 0
		} else {
			dst[i] = 1
		}
	}
	return dst
}

// Registration announces a benchmark run to the server so it can size its
// internal structures.
type Registration struct {
	Delegation  uint8
	Capacity    int
	Threads     int
	OpsPerBatch int
}

// String renders the registration line, newline included
func (r Registration) String() string {
	return fmt.Sprintf("%d %d %d %d\n", r.Delegation, r.Capacity, r.Threads, r.OpsPerBatch)
}

// ParseRegistration parses a registration line as sent by Registration.String
func ParseRegistration(line string) (Registration, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Registration{}, fmt.Errorf("%w: %q", ErrRegistration, line)
	}
	var nums [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return Registration{}, fmt.Errorf("%w: field %d %q", ErrRegistration, i, f)
		}
		nums[i] = n
	}
	if nums[0] > 255 {
		return Registration{}, fmt.Errorf("%w: delegation %d out of range", ErrRegistration, nums[0])
	}
	if nums[3] == 0 {
		return Registration{}, fmt.Errorf("%w: ops per batch must be positive", ErrRegistration)
	}
	return Registration{
		Delegation:  uint8(nums[0]),
		Capacity:    nums[1],
		Threads:     nums[2],
		OpsPerBatch: nums[3],
	}, nil
}
