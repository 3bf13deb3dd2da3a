package kvserver

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"kvbench/client/wire"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(nil)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, lis.Addr().String()
}

func register(t *testing.T, addr string, reg wire.Registration) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := io.WriteString(conn, reg.String()); err != nil {
		t.Fatal(err)
	}
}

func exchange(t *testing.T, conn net.Conn, opsSt int, ops []wire.Op) []bool {
	t.Helper()
	frame, err := wire.EncodeBatch(nil, opsSt, ops)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatal(err)
	}
	status := make([]byte, opsSt)
	if _, err := io.ReadFull(conn, status); err != nil {
		t.Fatal(err)
	}
	return wire.DecodeStatus(status)
}

func TestApply(t *testing.T) {
	srv := NewServer(nil)
	got := srv.Apply([]wire.Op{
		{Code: wire.OpRead, Key: 1},   // absent
		{Code: wire.OpInsert, Key: 1}, // new
		{Code: wire.OpInsert, Key: 1}, // duplicate
		{Code: wire.OpRead, Key: 1},
		{Code: wire.OpUpdate, Key: 1},
		{Code: wire.OpUpdate, Key: 2},
		{Code: wire.OpRemove, Key: 1},
		{Code: wire.OpRemove, Key: 1},
		{Code: wire.OpIdle},
	})
	want := []bool{false, true, false, true, true, false, true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %v, want %v", i, got[i], want[i])
		}
	}
	if srv.Len() != 0 {
		t.Errorf("Len() = %d, want 0", srv.Len())
	}
}

func TestServeSession(t *testing.T) {
	srv, addr := startServer(t)
	reg := wire.Registration{Delegation: 2, Capacity: 64, Threads: 1, OpsPerBatch: 3}
	register(t, addr, reg)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	got := exchange(t, conn, 3, []wire.Op{{Code: wire.OpInsert, Key: 10}, {Code: wire.OpRead, Key: 10}})
	if !got[0] || !got[1] {
		t.Errorf("insert/read results = %v, want success", got[:2])
	}
	if got[2] {
		t.Error("padding slot reported success")
	}

	closeStatus := exchange(t, conn, 3, nil)
	for i, ok := range closeStatus {
		if ok {
			t.Errorf("close frame slot %d reported success", i)
		}
	}

	// the server hangs up after the close frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("read after close frame error = %v, want EOF", err)
	}

	if srv.Registration() != reg {
		t.Errorf("Registration() = %+v, want %+v", srv.Registration(), reg)
	}
	if srv.Len() != 1 {
		t.Errorf("Len() = %d, want 1", srv.Len())
	}
}

func TestPreloadAndReset(t *testing.T) {
	srv := NewServer(nil)
	srv.Preload(1, 2, 3)
	if got := srv.Apply([]wire.Op{{Code: wire.OpInsert, Key: 2}}); got[0] {
		t.Error("insert of preloaded key succeeded")
	}
	srv.Reset()
	if srv.Len() != 0 {
		t.Errorf("Len() after Reset = %d", srv.Len())
	}
}

func TestRun(t *testing.T) {
	if err := Run(context.Background(), "127.0.0.1:-1", nil); err == nil {
		t.Error("Run() accepted an invalid address")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, "127.0.0.1:0", nil) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop")
	}
}
