// Package kvserver is an in-memory reference implementation of the server side
// of the batch protocol. It stores keys only and answers every record with
// the status a correct delegation server must produce, which makes it usable
// for local smoke runs of benchctl and for tests.
package kvserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"kvbench/client/logger"
	"kvbench/client/wire"

	"golang.org/x/sync/errgroup"
)

type Server struct {
	logger *logger.Logger

	keysMu sync.RWMutex
	keys   map[uint64]struct{}

	regMu      sync.Mutex
	reg        wire.Registration
	registered chan struct{}
	regOnce    sync.Once
}

func NewServer(log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		logger:     log,
		keys:       make(map[uint64]struct{}),
		registered: make(chan struct{}),
	}
}

// ListenAndServe listens on addr and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Run serves a fresh reference server on addr until ctx is done. It backs both
// benchctl serve and the standalone kvserver binary.
func Run(ctx context.Context, addr string, log *logger.Logger) error {
	srv := NewServer(log)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return err
	}
	srv.logger.Infow("Reference server stopped", "keys", srv.Len())
	return nil
}

// Serve accepts connections on lis until ctx is done. lis is closed on return.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Infow("Delegation reference server listening", "addr", lis.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-egCtx.Done()
		lis.Close()
		return nil
	})

	var acceptErr error
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		eg.Go(func() error {
			stop := context.AfterFunc(egCtx, func() { conn.Close() })
			defer stop()
			defer conn.Close()
			if err := s.handle(egCtx, conn); err != nil {
				s.logger.Warnw("Connection ended with error", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return nil
		})
	}

	cancel()
	if err := eg.Wait(); err != nil {
		return err
	}
	return acceptErr
}

// handle tells the control connection from data connections by the first
// byte: a registration line starts with an ASCII digit, a frame with an
// opcode below 5.
func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	r := bufio.NewReader(conn)
	first, err := r.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if first[0] >= '0' && first[0] <= '9' {
		return s.handleRegistration(r)
	}
	return s.handleData(ctx, r, conn)
}

func (s *Server) handleRegistration(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read registration: %w", err)
	}
	reg, err := wire.ParseRegistration(line)
	if err != nil {
		return err
	}

	s.regMu.Lock()
	s.reg = reg
	s.regMu.Unlock()
	s.regOnce.Do(func() { close(s.registered) })

	s.logger.Infow("Received registration",
		"delegation", reg.Delegation,
		"capacity", reg.Capacity,
		"threads", reg.Threads,
		"ops_st", reg.OpsPerBatch)
	return nil
}

func (s *Server) handleData(ctx context.Context, r *bufio.Reader, w io.Writer) error {
	select {
	case <-s.registered:
	case <-ctx.Done():
		return ctx.Err()
	}
	opsSt := s.Registration().OpsPerBatch

	frame := make([]byte, wire.FrameSize(opsSt))
	var status []byte
	for {
		if _, err := io.ReadFull(r, frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		ops, err := wire.DecodeBatch(frame, opsSt)
		if err != nil {
			return err
		}
		status = wire.EncodeStatus(status, s.Apply(ops))
		if _, err := w.Write(status); err != nil {
			return fmt.Errorf("write status: %w", err)
		}
		if wire.IsCloseFrame(frame) {
			return nil
		}
	}
}

// Apply executes ops in order and returns their outcomes. Idle records
// always report failure.
func (s *Server) Apply(ops []wire.Op) []bool {
	results := make([]bool, len(ops))

	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	for i, op := range ops {
		_, present := s.keys[op.Key]
		switch op.Code {
		case wire.OpRead, wire.OpUpdate:
			results[i] = present
		case wire.OpInsert:
			if !present {
				s.keys[op.Key] = struct{}{}
			}
			results[i] = !present
		case wire.OpRemove:
			if present {
				delete(s.keys, op.Key)
			}
			results[i] = present
		}
	}
	return results
}

// Preload inserts keys without going through the wire
func (s *Server) Preload(keys ...uint64) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
}

// Reset drops every stored key
func (s *Server) Reset() {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	clear(s.keys)
}

// Len returns the number of stored keys
func (s *Server) Len() int {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	return len(s.keys)
}

// Registration returns the last registration received
func (s *Server) Registration() wire.Registration {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return s.reg
}
