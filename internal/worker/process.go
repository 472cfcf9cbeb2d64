package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ReadyMarker is the substring of the line the worker prints once its model
// is loaded.
const ReadyMarker = "server started successfully"

// ProcessTransport runs the worker as a child process and exchanges
// newline-delimited messages over its standard streams.
//
// Round trips are not interruptible: a reply is read until it arrives or the
// process exits. ctx is only checked before the request is written.
type ProcessTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	closeGrace time.Duration

	mu sync.Mutex

	done    chan struct{}
	waitErr error
}

var _ Transport = (*ProcessTransport)(nil)

type processConfig struct {
	readyTimeout time.Duration
	closeGrace   time.Duration
}

// ProcessOption is a functional option for [StartProcess].
type ProcessOption func(*processConfig)

// WithReadyTimeout bounds how long [StartProcess] waits for [ReadyMarker].
// Default: 10 minutes; model loading is slow.
func WithReadyTimeout(d time.Duration) ProcessOption {
	return func(c *processConfig) { c.readyTimeout = d }
}

// WithCloseGrace sets how long [ProcessTransport.Close] waits for a voluntary
// exit before killing the process. Default: 5s.
func WithCloseGrace(d time.Duration) ProcessOption {
	return func(c *processConfig) { c.closeGrace = d }
}

// StartProcess launches argv and blocks until the worker reports readiness.
// Lines printed before the readiness line are logged and discarded.
func StartProcess(ctx context.Context, argv []string, opts ...ProcessOption) (*ProcessTransport, error) {
	if len(argv) == 0 {
		return nil, errors.New("worker: empty command")
	}
	cfg := processConfig{readyTimeout: 10 * time.Minute, closeGrace: 5 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker: start %s: %w", argv[0], err)
	}

	p := &ProcessTransport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		done:   make(chan struct{}),

		closeGrace: cfg.closeGrace,
	}
	go logStderr(stderr, cmd.Process.Pid)

	// Readiness must be read before Wait is started: Wait closes the stdout
	// pipe once the process exits.
	ready := make(chan error, 1)
	go func() { ready <- p.awaitReady() }()

	timer := time.NewTimer(cfg.readyTimeout)
	defer timer.Stop()
	select {
	case err = <-ready:
	case <-timer.C:
		err = fmt.Errorf("worker: no readiness line within %s", cfg.readyTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	go p.wait()
	if err != nil {
		_ = cmd.Process.Kill()
		<-p.done
		return nil, err
	}

	slog.Info("worker started", "pid", cmd.Process.Pid, "command", strings.Join(argv, " "))
	return p, nil
}

func (p *ProcessTransport) awaitReady() error {
	for {
		line, err := p.stdout.ReadString('\n')
		if strings.Contains(line, ReadyMarker) {
			return nil
		}
		if line != "" {
			slog.Debug("worker startup output", "line", strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return fmt.Errorf("%w: exited before readiness: %v", ErrWorkerUnavailable, err)
		}
	}
}

func (p *ProcessTransport) wait() {
	p.waitErr = p.cmd.Wait()
	if p.waitErr != nil {
		slog.Warn("worker process exited", "pid", p.cmd.Process.Pid, "err", p.waitErr)
	} else {
		slog.Info("worker process exited", "pid", p.cmd.Process.Pid)
	}
	close(p.done)
}

// Alive reports whether the child process is still running.
func (p *ProcessTransport) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// RoundTrip writes line followed by a newline and reads one reply line.
func (p *ProcessTransport) RoundTrip(ctx context.Context, line []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.write(ctx, line); err != nil {
		return nil, err
	}
	reply, err := p.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", ErrWorkerUnavailable, err)
	}
	return trimEOL(reply), nil
}

// Send writes line followed by a newline without reading a reply.
func (p *ProcessTransport) Send(ctx context.Context, line []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(ctx, line)
}

func (p *ProcessTransport) write(ctx context.Context, line []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Alive() {
		return ErrWorkerUnavailable
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, trimEOL(line)...)
	buf = append(buf, '\n')
	if _, err := p.stdin.Write(buf); err != nil {
		return fmt.Errorf("%w: write request: %v", ErrWorkerUnavailable, err)
	}
	return nil
}

// Close closes the worker's stdin and waits for it to exit, killing it after
// the grace period.
func (p *ProcessTransport) Close() error {
	_ = p.stdin.Close()
	select {
	case <-p.done:
	case <-time.After(p.closeGrace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	var exitErr *exec.ExitError
	if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
		return fmt.Errorf("worker: wait: %w", p.waitErr)
	}
	return nil
}

// Done is closed when the worker process exits.
func (p *ProcessTransport) Done() <-chan struct{} { return p.done }

func logStderr(r io.Reader, pid int) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		slog.Debug("worker stderr", "pid", pid, "line", sc.Text())
	}
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
