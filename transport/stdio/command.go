package stdio

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Command returns a transport speaking to the subprocess described by cmd.
// The child's stdin and stdout carry the protocol and its stderr is the side
// channel, classified with classify.Default unless WithClassifier says
// otherwise. The process is started by Start. Shutdown closes its stdin,
// waits WithProcessGrace for it to exit and kills it after that.
func Command(cmd *exec.Cmd, opts ...Option) (*Transport, error) {
	if cmd.Process != nil {
		return nil, errors.New("stdio: command already started")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stderr pipe: %w", err)
	}

	t := New(stdout, stdin, append([]Option{WithSideChannel(stderr, nil)}, opts...)...)
	t.onStart = cmd.Start
	t.onShutdown = func() { t.waitProcess(cmd) }
	return t, nil
}

func (t *Transport) waitProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	start := time.Now()
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var err error
	select {
	case err = <-exited:
	case <-time.After(t.processGrace):
		t.log.Warn("stdio.process.kill", slog.Int("pid", cmd.Process.Pid), slog.Int64("grace_ms", t.processGrace.Milliseconds()))
		_ = cmd.Process.Kill()
		err = <-exited
	}

	attrs := []any{slog.Int("pid", cmd.Process.Pid), slog.Int64("dur_ms", time.Since(start).Milliseconds())}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	t.log.Debug("stdio.process.exit", attrs...)
}
