package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/gherkit/gherkit/ipc"
)

// WorkerIDEnvVar tells a spawned worker process which pool slot it fills.
const WorkerIDEnvVar = "GHERKIT_WORKER_ID"

// WorkerProcess abstracts the OS process behind a worker so the pool can be
// tested against in-memory fakes.
type WorkerProcess interface {
	// Start launches the process. The context bounds the process lifetime;
	// cancelling it kills the process.
	Start(ctx context.Context) error

	// Send delivers a message on the worker's stdin channel.
	Send(msg ipc.Message) error

	// Receive blocks until the next message arrives on the worker's stdout
	// channel. It returns io.EOF when the process closed its end.
	Receive() (ipc.Message, error)

	// Wait blocks until the process exits or the timeout elapses.
	Wait(timeout time.Duration) error

	// Kill forcibly terminates the process. Safe to call more than once.
	Kill()
}

// ProcessFactory creates worker processes. The pool calls it at startup and
// again whenever a worker is recycled.
type ProcessFactory interface {
	NewProcess(workerID int) WorkerProcess
}

// ExecProcessConfig configures the exec-based factory.
type ExecProcessConfig struct {
	// Command is the binary to run. Empty means the current executable, which
	// re-enters through the hidden worker subcommand.
	Command string
	// Args are the arguments passed to the command. Empty means ["worker"].
	Args []string
	// Env entries appended to the inherited environment.
	Env []string
	// Stderr receives the worker's stderr stream. Nil means os.Stderr, so
	// worker log lines land in the orchestrator's own log output.
	Stderr io.Writer

	Log log.Logger
}

type execProcessFactory struct {
	cfg ExecProcessConfig
}

// NewExecProcessFactory returns a factory that spawns real OS worker
// processes wired up over stdin/stdout pipes.
func NewExecProcessFactory(cfg ExecProcessConfig) ProcessFactory {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return &execProcessFactory{cfg: cfg}
}

func (f *execProcessFactory) NewProcess(workerID int) WorkerProcess {
	return &execProcess{workerID: workerID, cfg: f.cfg}
}

// execProcess is the production WorkerProcess: a child started with os/exec,
// speaking newline-delimited JSON on its pipes.
type execProcess struct {
	workerID int
	cfg      ExecProcessConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *ipc.Writer
	reader *ipc.Reader

	waitDone chan struct{}
	waitErr  error

	killOnce sync.Once
}

func (p *execProcess) Start(ctx context.Context) error {
	command := p.cfg.Command
	if command == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving worker executable: %w", err)
		}
		command = exe
	}
	args := p.cfg.Args
	if len(args) == 0 {
		args = []string{"worker"}
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", WorkerIDEnvVar, p.workerID))
	if p.cfg.Stderr != nil {
		cmd.Stderr = p.cfg.Stderr
	} else {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting worker process: %w", err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.writer = ipc.NewWriter(stdin)
	p.reader = ipc.NewReader(stdout)
	p.waitDone = make(chan struct{})

	p.cfg.Log.Debug("Started worker process", "workerId", p.workerID, "pid", cmd.Process.Pid)

	go func() {
		p.waitErr = cmd.Wait()
		close(p.waitDone)
	}()

	return nil
}

func (p *execProcess) Send(msg ipc.Message) error {
	if p.writer == nil {
		return fmt.Errorf("worker %d not started", p.workerID)
	}
	return p.writer.Write(msg)
}

func (p *execProcess) Receive() (ipc.Message, error) {
	if p.reader == nil {
		return ipc.Message{}, fmt.Errorf("worker %d not started", p.workerID)
	}
	return p.reader.Next()
}

func (p *execProcess) Wait(timeout time.Duration) error {
	if p.waitDone == nil {
		return nil
	}
	select {
	case <-p.waitDone:
		return p.waitErr
	case <-time.After(timeout):
		return fmt.Errorf("worker %d did not exit within %s", p.workerID, timeout)
	}
}

func (p *execProcess) Kill() {
	p.killOnce.Do(func() {
		if p.stdin != nil {
			_ = p.stdin.Close()
		}
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	})
}
