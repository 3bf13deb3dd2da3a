package wire

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeBatch(t *testing.T) {
	tests := []struct {
		name  string
		opsSt int
		ops   []Op
	}{
		{"empty batch", 4, nil},
		{"partial batch", 4, []Op{{OpRead, 1}, {OpInsert, math.MaxUint64}}},
		{"full batch", 3, []Op{{OpRemove, 7}, {OpUpdate, 1 << 40}, {OpInsert, 0}}},
		{"single slot", 1, []Op{{OpInsert, 42}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeBatch(nil, tt.opsSt, tt.ops)
			if err != nil {
				t.Fatalf("EncodeBatch() error = %v", err)
			}
			if len(frame) != tt.opsSt*RecordSize {
				t.Fatalf("frame length = %d, want %d", len(frame), tt.opsSt*RecordSize)
			}

			decoded, err := DecodeBatch(frame, tt.opsSt)
			if err != nil {
				t.Fatalf("DecodeBatch() error = %v", err)
			}
			for i, op := range decoded {
				if i < len(tt.ops) {
					if op != tt.ops[i] {
						t.Errorf("record %d = %+v, want %+v", i, op, tt.ops[i])
					}
					continue
				}
				if op.Code != OpIdle || op.Key != 0 {
					t.Errorf("padding record %d = %+v, want zero", i, op)
				}
			}
		})
	}
}

func TestEncodeBatchLayout(t *testing.T) {
	frame, err := EncodeBatch(nil, 2, []Op{{OpRemove, 0x0102030405060708}})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		3, 1, 2, 3, 4, 5, 6, 7, 8,
		0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = %v, want %v", frame, want)
	}
}

func TestEncodeBatchReusesBuffer(t *testing.T) {
	buf, _ := EncodeBatch(nil, 2, []Op{{OpRead, 9}, {OpRead, 10}})
	// a shorter batch must clear the stale tail
	buf, err := EncodeBatch(buf, 2, []Op{{OpInsert, 1}})
	if err != nil {
		t.Fatal(err)
	}
	ops, _ := DecodeBatch(buf, 2)
	if ops[1] != (Op{}) {
		t.Errorf("stale record survived: %+v", ops[1])
	}
}

func TestEncodeBatchOverflow(t *testing.T) {
	_, err := EncodeBatch(nil, 1, []Op{{OpRead, 1}, {OpRead, 2}})
	if !errors.Is(err, ErrBatchOverflow) {
		t.Errorf("error = %v, want ErrBatchOverflow", err)
	}
}

func TestDecodeBatchErrors(t *testing.T) {
	if _, err := DecodeBatch(make([]byte, 10), 1); !errors.Is(err, ErrFrameSize) {
		t.Errorf("short frame error = %v, want ErrFrameSize", err)
	}
	frame := make([]byte, RecordSize)
	frame[0] = 9
	if _, err := DecodeBatch(frame, 1); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("bad opcode error = %v, want ErrUnknownOpcode", err)
	}
}

func TestCloseFrame(t *testing.T) {
	frame := CloseFrame(5)
	if len(frame) != 5*RecordSize {
		t.Fatalf("close frame length = %d", len(frame))
	}
	if !IsCloseFrame(frame) {
		t.Error("close frame not recognised")
	}
	ops, err := DecodeBatch(frame, 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, op := range ops {
		if op.Code != OpIdle {
			t.Errorf("close frame carries %v", op.Code)
		}
	}

	frame, _ = EncodeBatch(nil, 5, []Op{{OpRead, 0}})
	if IsCloseFrame(frame) {
		t.Error("frame with a read reported as close frame")
	}
}

func TestStatusCodec(t *testing.T) {
	got := DecodeStatus([]byte{0, 1, 0, 255})
	want := []bool{true, false, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status %d = %v, want %v", i, got[i], want[i])
		}
	}

	back := DecodeStatus(EncodeStatus(nil, want))
	for i := range want {
		if back[i] != want[i] {
			t.Errorf("round trip status %d = %v, want %v", i, back[i], want[i])
		}
	}
}

func TestRegistration(t *testing.T) {
	reg := Registration{Delegation: 3, Capacity: 32768, Threads: 8, OpsPerBatch: 16}
	if got := reg.String(); got != "3 32768 8 16\n" {
		t.Errorf("String() = %q", got)
	}
	parsed, err := ParseRegistration(reg.String())
	if err != nil {
		t.Fatalf("ParseRegistration() error = %v", err)
	}
	if parsed != reg {
		t.Errorf("parsed = %+v, want %+v", parsed, reg)
	}

	for _, line := range []string{"", "1 2 3", "1 2 3 x", "300 1 1 1", "1 1 1 0", "1 -2 1 1"} {
		if _, err := ParseRegistration(line); !errors.Is(err, ErrRegistration) {
			t.Errorf("ParseRegistration(%q) error = %v, want ErrRegistration", line, err)
		}
	}
}
