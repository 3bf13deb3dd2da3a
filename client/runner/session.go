package runner

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"kvbench/client/logger"
	"kvbench/client/wire"
)

// DefaultDialTimeout bounds a single connection attempt
const DefaultDialTimeout = 5 * time.Second

// Dialer opens connections to the delegation server. A failed attempt is
// retried immediately, with no backoff, until ctx is done.
type Dialer struct {
	Addr    string
	Timeout time.Duration
	Logger  *logger.Logger
}

func (d *Dialer) connect(ctx context.Context) (net.Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	nd := net.Dialer{Timeout: timeout}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("connect to %s: %w", d.Addr, err)
		}
		conn, err := nd.DialContext(ctx, "tcp", d.Addr)
		if err == nil {
			d.Logger.Debugw("Connected", "addr", d.Addr, "attempt", attempt)
			return conn, nil
		}
		if attempt == 1 {
			d.Logger.Warnw("Not able to connect, retrying", "addr", d.Addr, "error", err)
		} else {
			d.Logger.Debugw("Not able to connect", "addr", d.Addr, "attempt", attempt, "error", err)
		}
	}
}

// Register announces the run on a dedicated control connection. The server
// sends no reply, the connection is closed once the line is written.
func (d *Dialer) Register(ctx context.Context, reg wire.Registration) error {
	conn, err := d.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, reg.String()); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}
	d.Logger.Infow("Registered benchmark run",
		"delegation", reg.Delegation,
		"capacity", reg.Capacity,
		"threads", reg.Threads,
		"ops_st", reg.OpsPerBatch)
	return nil
}

// Dial opens a data session exchanging frames of opsSt records
func (d *Dialer) Dial(ctx context.Context, opsSt int) (*Session, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, opsSt), nil
}

// Session is one worker's data connection. It is not safe for concurrent use.
type Session struct {
	conn   net.Conn
	opsSt  int
	frame  []byte
	status []byte
}

func NewSession(conn net.Conn, opsSt int) *Session {
	return &Session{
		conn:   conn,
		opsSt:  opsSt,
		frame:  make([]byte, wire.FrameSize(opsSt)),
		status: make([]byte, opsSt),
	}
}

// Exchange sends ops as one frame and returns the outcome of every slot of
// the frame. A short write or read is fatal for the session.
func (s *Session) Exchange(ops []wire.Op) ([]bool, error) {
	frame, err := wire.EncodeBatch(s.frame, s.opsSt, ops)
	if err != nil {
		return nil, err
	}
	return s.roundTrip(frame)
}

func (s *Session) roundTrip(frame []byte) ([]bool, error) {
	if _, err := s.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}
	if _, err := io.ReadFull(s.conn, s.status); err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	return wire.DecodeStatus(s.status), nil
}

// Close sends the close frame, waits for its reply and closes the socket.
func (s *Session) Close() error {
	_, err := s.roundTrip(wire.CloseFrame(s.opsSt))
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// Abort drops the socket without the close handshake
func (s *Session) Abort() error {
	return s.conn.Close()
}

// Watch unblocks pending I/O once ctx is done. The returned function stops
// watching.
func (s *Session) Watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
}
