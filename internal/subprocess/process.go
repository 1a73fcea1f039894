package subprocess

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/appsecco/mcpbridge/internal/config"
	bridgeerrors "github.com/appsecco/mcpbridge/internal/errors"
)

const (
	// maxScanTokenSize is the buffer size for reading server output.
	// MCP responses carrying large tool results can exceed the bufio
	// default of 64KB.
	maxScanTokenSize = 1024 * 1024 // 1MB

	// maxStderrBufferSize caps retained stderr output. Beyond this the
	// buffer stops growing; a server that logs gigabytes to stderr must
	// not take the bridge down with it.
	maxStderrBufferSize = 10 * 1024 * 1024 // 10MB

	// readinessPollInterval is how often startup output is re-examined
	// while waiting for the server to come up.
	readinessPollInterval = 500 * time.Millisecond
)

// State is the lifecycle state of a managed server process.
type State string

const (
	// StateStarting means the process is launched but not yet classified
	// as ready.
	StateStarting State = "starting"
	// StateReady means startup output indicated readiness, or the
	// process stayed alive through the whole readiness budget.
	StateReady State = "ready"
	// StateExited means the process terminated.
	StateExited State = "exited"
	// StateFailed means startup output indicated a launch failure.
	StateFailed State = "failed"
)

// Process supervises a single MCP server child process. It owns the
// process's pipes, collects its output, and decides when the server is
// ready to accept requests.
//
// A Process is single use. After Stop it cannot be restarted; create a new
// one to relaunch the server.
type Process struct {
	log  *slog.Logger
	name string
	spec config.ServerConfig
	opts *config.Options

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	mechanism Mechanism
	startedAt time.Time

	// stdoutLines carries every stdout line, in order. Closed when the
	// process's stdout reaches EOF.
	stdoutLines chan string
	// stderrLines carries stderr lines for readiness classification.
	// Best effort; the authoritative copy lives in stderrBuf.
	stderrLines chan string

	stderrMu  sync.Mutex
	stderrBuf strings.Builder

	writeMu     sync.Mutex
	stdinClosed bool

	lifeMu  sync.Mutex
	state   State
	stopped bool

	scanners sync.WaitGroup
	// done is closed by Stop to release the stdout scanner if nothing is
	// draining stdoutLines anymore.
	done chan struct{}
	// waitDone is closed once the process has exited and its output has
	// been fully consumed.
	waitDone chan struct{}
	waitErr  error
}

// NewProcess prepares a supervisor for the named server. Nothing is
// launched until Start.
func NewProcess(name string, spec config.ServerConfig, opts *config.Options) *Process {
	if opts == nil {
		opts = config.NewOptions()
	}

	log := opts.Logger
	if log == nil {
		log = config.NopLogger()
	}

	return &Process{
		log:         log.With("component", "subprocess", "server", name),
		name:        name,
		spec:        spec,
		opts:        opts,
		state:       StateStarting,
		stdoutLines: make(chan string, 16),
		stderrLines: make(chan string, 64),
		done:        make(chan struct{}),
		waitDone:    make(chan struct{}),
	}
}

// Start launches the server process with its merged environment and begins
// collecting output. The readiness mechanism is detected from the original
// command line, before any proxychains wrapping.
func (p *Process) Start() error {
	command := p.spec.Command
	args := p.spec.Args

	p.mechanism = DetectMechanism(command, args)

	if p.opts.UseProxychains {
		wrapped, wrappedArgs, err := wrapProxychains(p.log, command, args)
		if err != nil {
			return &bridgeerrors.SpawnError{Command: command, Err: err}
		}
		command, args = wrapped, wrappedArgs
	}

	p.log.Debug("Starting server process",
		"command", command,
		"args", args,
		"mechanism", p.mechanism,
		"sslBypass", p.opts.SSLBypass)

	cmd := exec.Command(command, args...)
	cmd.Env = BuildEnvironment(p.spec, p.opts.SSLBypass)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &bridgeerrors.SpawnError{Command: command, Err: fmt.Errorf("failed to get stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &bridgeerrors.SpawnError{Command: command, Err: fmt.Errorf("failed to get stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &bridgeerrors.SpawnError{Command: command, Err: fmt.Errorf("failed to get stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &bridgeerrors.SpawnError{Command: command, Err: err}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.startedAt = time.Now()

	p.scanners.Add(2)
	go p.scanStdout(stdout)
	go p.scanStderr(stderr)
	go p.wait()

	p.log.Info("Server process started", "pid", cmd.Process.Pid)

	return nil
}

// scanStdout forwards stdout lines to stdoutLines in order. Lines are
// protocol data and are never dropped; the consumer must drain the channel
// until it closes.
func (p *Process) scanStdout(r io.Reader) {
	defer p.scanners.Done()
	defer close(p.stdoutLines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxScanTokenSize), maxScanTokenSize)

	for scanner.Scan() {
		select {
		case p.stdoutLines <- scanner.Text():
		case <-p.done:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		p.log.Debug("Stdout scanner stopped", "error", err)
	}
}

// scanStderr accumulates stderr into the capped buffer and forwards lines
// for readiness classification. The forward is non-blocking; once the
// channel's buffer is full (nobody is classifying anymore) lines are only
// retained in the buffer.
func (p *Process) scanStderr(r io.Reader) {
	defer p.scanners.Done()
	defer close(p.stderrLines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxScanTokenSize), maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Text()

		p.stderrMu.Lock()
		if p.stderrBuf.Len()+len(line) < maxStderrBufferSize {
			p.stderrBuf.WriteString(line)
			p.stderrBuf.WriteByte('\n')
		}
		p.stderrMu.Unlock()

		p.log.Debug("Server stderr", "line", line)

		select {
		case p.stderrLines <- line:
		default:
		}
	}
}

// wait reaps the process after both scanners have finished, so exec.Cmd
// does not close the pipes while output is still being read.
func (p *Process) wait() {
	p.scanners.Wait()
	err := p.cmd.Wait()

	p.lifeMu.Lock()
	stopped := p.stopped
	if p.state == StateStarting || p.state == StateReady {
		p.state = StateExited
	}
	p.lifeMu.Unlock()

	p.waitErr = err
	close(p.waitDone)

	if err != nil && !stopped {
		p.log.Warn("Server process exited", "error", err, "exitCode", p.exitCode())
	}
}

// AwaitReady blocks until the server is classified as ready or has failed
// to come up.
//
// Startup output is polled every 500ms. Each pass examines stderr before
// stdout, and within a line the success table before the error table. If
// the readiness budget elapses with no verdict and the process is still
// alive, the server is assumed ready; plenty of MCP servers start without
// printing anything.
func (p *Process) AwaitReady(ctx context.Context) error {
	deadline := time.Now().Add(p.opts.ReadinessTimeout)

	stderrCh := p.stderrLines
	stdoutCh := p.stdoutLines

	var stdoutSeen []string

	for {
		select {
		case <-p.waitDone:
			return p.exitedDuringStartup(stdoutSeen)
		default:
		}

		verdict, line, stream, open := p.drainVerdict(stderrCh, "stderr", nil)
		if !open {
			stderrCh = nil
		}
		if verdict == VerdictNone {
			verdict, line, stream, open = p.drainVerdict(stdoutCh, "stdout", &stdoutSeen)
			if !open {
				stdoutCh = nil
			}
		}

		switch verdict {
		case VerdictReady:
			p.setState(StateReady)
			p.log.Info("Server ready",
				"line", line,
				"stream", stream,
				"elapsed", time.Since(p.startedAt).Round(time.Millisecond))

			return nil
		case VerdictFailed:
			p.setState(StateFailed)
			p.log.Error("Server startup failed", "line", line, "stream", stream)

			return &bridgeerrors.ReadinessError{Line: line, Stream: stream}
		}

		if time.Now().After(deadline) {
			p.setState(StateReady)
			p.log.Warn("No readiness indicator within budget, assuming server is up",
				"budget", p.opts.ReadinessTimeout)

			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.waitDone:
			return p.exitedDuringStartup(stdoutSeen)
		case <-time.After(readinessPollInterval):
		}
	}
}

// drainVerdict classifies whatever output is currently buffered on ch,
// returning the first non-none verdict. Consumed lines are appended to seen
// when it is non-nil. The final return reports whether the channel is still
// open.
func (p *Process) drainVerdict(ch chan string, stream string, seen *[]string) (Verdict, string, string, bool) {
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return VerdictNone, "", "", false
			}
			if seen != nil {
				*seen = append(*seen, line)
			}
			if v := Classify(line, p.mechanism); v != VerdictNone {
				return v, line, stream, true
			}
		default:
			return VerdictNone, "", "", true
		}
	}
}

// exitedDuringStartup builds the failure for a process that died before any
// readiness verdict, attaching whatever output it produced. Both line
// channels are closed by the time waitDone fires, so draining here cannot
// block.
func (p *Process) exitedDuringStartup(stdoutSeen []string) error {
	p.setState(StateExited)

	for line := range p.stdoutLines {
		stdoutSeen = append(stdoutSeen, line)
	}

	exitErr := &bridgeerrors.ProcessExitedError{
		ExitCode: p.exitCode(),
		Stdout:   strings.Join(stdoutSeen, "\n"),
		Stderr:   p.StderrOutput(),
	}
	p.log.Error("Server exited during startup", "exitCode", exitErr.ExitCode)

	return exitErr
}

// Write sends one framed message to the server's stdin. The data is copied
// before the newline is appended so the caller's buffer is never modified.
//
// If ctx is cancelled while the write is blocked, stdin is closed to
// release it and the transport becomes unusable.
func (p *Process) Write(ctx context.Context, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.stdin == nil {
		return bridgeerrors.ErrNotConnected
	}

	if p.stdinClosed {
		return bridgeerrors.ErrTransportClosed
	}

	// Check context before starting
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	framed := make([]byte, len(data), len(data)+1)
	copy(framed, data)
	framed = append(framed, '\n')

	done := make(chan error, 1)
	go func() {
		_, err := p.stdin.Write(framed)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to write to server stdin: %w", err)
		}

		return nil
	case <-ctx.Done():
		p.log.Debug("Context cancelled during write, closing stdin")
		p.stdinClosed = true
		_ = p.stdin.Close()

		// Wait for the write goroutine to exit, with a timeout in case
		// closing the pipe does not release it.
		select {
		case <-done:
		case <-time.After(1 * time.Second):
			p.log.Warn("Write goroutine did not exit after stdin close, potential leak")
		}

		return ctx.Err()
	}
}

// Stop terminates the server process: SIGTERM first, then SIGKILL if it is
// still running after the grace period. Safe to call multiple times;
// subsequent calls return immediately.
//
// Stop never closes stdin itself. A Write blocked on a full pipe holds
// writeMu, and killing the process breaks the pipe and releases it; the
// exec machinery closes stdin once the process is reaped.
func (p *Process) Stop() error {
	p.lifeMu.Lock()
	alreadyStopped := p.stopped
	p.stopped = true
	p.lifeMu.Unlock()

	if alreadyStopped || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	close(p.done)

	select {
	case <-p.waitDone:
		// Already exited on its own.
	default:
		p.log.Debug("Stopping server process", "pid", p.cmd.Process.Pid)

		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// Delivery failed: the process is already gone or the
			// platform has no SIGTERM. Kill covers both.
			_ = p.cmd.Process.Kill()
		}
	}

	select {
	case <-p.waitDone:
	case <-time.After(p.opts.TerminateGrace):
		p.log.Warn("Server ignored SIGTERM, killing", "pid", p.cmd.Process.Pid)
		_ = p.cmd.Process.Kill()

		select {
		case <-p.waitDone:
		case <-time.After(p.opts.TerminateGrace):
			// The process is dead but its output pipes are still open,
			// almost certainly inherited by a grandchild that survived
			// the kill. Do not block shutdown on it.
			p.log.Warn("Server output pipes still open after kill, not waiting for reap")
		}
	}

	p.writeMu.Lock()
	p.stdinClosed = true
	p.writeMu.Unlock()

	p.log.Info("Server process stopped",
		"uptime", time.Since(p.startedAt).Round(time.Millisecond))

	return nil
}

// Lines exposes the server's stdout stream. The channel closes when the
// process's stdout reaches EOF.
func (p *Process) Lines() <-chan string {
	return p.stdoutLines
}

// Alive reports whether the process is running.
func (p *Process) Alive() bool {
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}

	select {
	case <-p.waitDone:
		return false
	default:
		return true
	}
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	return p.state
}

func (p *Process) setState(s State) {
	p.lifeMu.Lock()
	p.state = s
	p.lifeMu.Unlock()
}

// Pid returns the operating system process id, or 0 before Start.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}

	return p.cmd.Process.Pid
}

// StartedAt returns the launch timestamp, zero before Start.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Mechanism returns the readiness vocabulary chosen for this server.
func (p *Process) Mechanism() Mechanism {
	return p.mechanism
}

// StderrOutput returns everything the server has written to stderr, capped
// at maxStderrBufferSize.
func (p *Process) StderrOutput() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	return p.stderrBuf.String()
}

// exitCode is only meaningful after waitDone is closed.
func (p *Process) exitCode() int {
	if p.cmd != nil && p.cmd.ProcessState != nil {
		return p.cmd.ProcessState.ExitCode()
	}

	return -1
}
