// Package runner launches transfer subprocesses and supervises them: it
// splits their output into lines, feeds stdin, keeps a tail of stderr for
// error messages and reports completion exactly once.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// forcedEnv keeps tool output in a stable, parseable form.
var forcedEnv = []string{"LC_ALL=C", "LANG=C", "COLUMNS=200"}

const (
	// stderrTailLines is how many stderr lines are kept for error messages.
	stderrTailLines = 20
	// maxLineLength bounds a single output line.
	maxLineLength = 1024 * 1024
	// killGrace is how long a terminated process group gets before SIGKILL.
	killGrace = 2 * time.Second
)

// ErrKilled is returned by Wait when the process was stopped through Kill or
// context cancellation.
var ErrKilled = errors.New("process killed")

// Command describes one subprocess invocation.
type Command struct {
	Path string
	Args []string
	// Env entries are added after the inherited and forced variables and
	// win over both.
	Env []string
	Dir string
	// Stdin, when set, is copied to the child's stdin, which is closed at EOF.
	Stdin io.Reader
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Stream identifies which output a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one non-empty, trimmed line of child output.
type Line struct {
	Stream Stream
	Text   string
}

// LineFunc observes output lines. Calls are serialized across both streams.
type LineFunc func(Line)

// StartError means the process could not be launched at all (missing
// binary, permission denied). It never describes a process that ran.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExitError reports a process that ran and exited unsuccessfully.
type ExitError struct {
	Path   string
	Code   int
	Stderr string // tail of stderr
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s exited with code %d", e.Path, e.Code)
}

// Process is a running child.
type Process struct {
	cmd  *exec.Cmd
	path string

	done chan struct{}
	err  error
	code int

	emitMu sync.Mutex
	onLine LineFunc

	tailMu sync.Mutex
	tail   []string

	killMu  sync.Mutex
	killed  bool
	stdin   io.WriteCloser
	feedErr error
}

// Start launches cmd. Output lines go to onLine, which may be nil. When ctx
// ends the process is killed. A launch failure returns *StartError.
func Start(ctx context.Context, c Command, onLine LineFunc) (*Process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = buildEnv(c.Env)
	cmd.Dir = c.Dir
	configureProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StartError{Path: c.Path, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &StartError{Path: c.Path, Err: err}
	}
	var stdin io.WriteCloser
	if c.Stdin != nil {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, &StartError{Path: c.Path, Err: err}
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Path: c.Path, Err: err}
	}

	p := &Process{
		cmd:    cmd,
		path:   c.Path,
		done:   make(chan struct{}),
		onLine: onLine,
		stdin:  stdin,
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go p.scan(stdout, Stdout, &readers)
	go p.scan(stderr, Stderr, &readers)

	var feed sync.WaitGroup
	if stdin != nil {
		feed.Add(1)
		go p.feed(c.Stdin, stdin, &feed)
	}

	go func() {
		select {
		case <-ctx.Done():
			p.Kill()
		case <-p.done:
		}
	}()

	go func() {
		readers.Wait()
		waitErr := cmd.Wait()
		feed.Wait()
		p.finish(waitErr)
		close(p.done)
	}()

	return p, nil
}

func (p *Process) scan(r io.Reader, stream Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLength)
	sc.Split(scanCRLF)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if stream == Stderr {
			p.remember(text)
		}
		p.emit(Line{Stream: stream, Text: text})
	}
	// A line over maxLineLength stops the scanner; drain so the child
	// never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

func (p *Process) emit(l Line) {
	if p.onLine == nil {
		return
	}
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.onLine(l)
}

func (p *Process) remember(line string) {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	p.tail = append(p.tail, line)
	if len(p.tail) > stderrTailLines {
		p.tail = p.tail[len(p.tail)-stderrTailLines:]
	}
}

// feed copies src into the child's stdin. A read failure kills the child
// so a truncated stream is never committed remotely.
func (p *Process) feed(src io.Reader, stdin io.WriteCloser, wg *sync.WaitGroup) {
	defer wg.Done()
	fr := &feedReader{r: src}
	_, _ = io.Copy(stdin, fr)
	if fr.err != nil {
		p.killMu.Lock()
		p.feedErr = fr.err
		p.killMu.Unlock()
		p.Kill()
	}
	_ = stdin.Close()
}

type feedReader struct {
	r   io.Reader
	err error
}

func (f *feedReader) Read(b []byte) (int, error) {
	n, err := f.r.Read(b)
	if err != nil && err != io.EOF {
		f.err = err
	}
	return n, err
}

func (p *Process) finish(waitErr error) {
	p.killMu.Lock()
	killed, feedErr := p.killed, p.feedErr
	p.killMu.Unlock()

	if state := p.cmd.ProcessState; state != nil {
		p.code = state.ExitCode()
	}

	switch {
	case feedErr != nil:
		p.err = fmt.Errorf("reading local source: %w", feedErr)
	case killed:
		p.err = ErrKilled
	case waitErr == nil:
		p.err = nil
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			p.err = &ExitError{Path: p.path, Code: p.code, Stderr: p.StderrTail()}
		} else {
			p.err = waitErr
		}
	}
}

// Wait blocks until the process has exited and all output was delivered.
// It returns nil for exit status 0, ErrKilled after Kill, or *ExitError.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Done is closed once the process has exited and all output was delivered.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode returns the exit status once Done is closed, -1 if killed by a
// signal.
func (p *Process) ExitCode() int {
	<-p.done
	return p.code
}

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// StderrTail returns the last stderr lines joined by newlines.
func (p *Process) StderrTail() string {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	return strings.Join(p.tail, "\n")
}

// Kill stops the process and everything it spawned and closes any stdin
// feed. Safe to call more than once and after exit.
func (p *Process) Kill() {
	p.killMu.Lock()
	if p.killed {
		p.killMu.Unlock()
		return
	}
	select {
	case <-p.done:
		p.killMu.Unlock()
		return
	default:
	}
	p.killed = true
	stdin := p.stdin
	p.killMu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	terminate(p.cmd)

	go func() {
		select {
		case <-p.done:
		case <-time.After(killGrace):
			forceKill(p.cmd)
		}
	}()
}

// Output runs c to completion and returns its stdout. A non-zero exit
// returns *ExitError carrying stderr.
func Output(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = buildEnv(c.Env)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	configureProcAttr(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Path: c.Path, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), &ExitError{
				Path:   c.Path,
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

func buildEnv(extra []string) []string {
	env := os.Environ()
	env = append(env, forcedEnv...)
	return append(env, extra...)
}

// scanCRLF splits on \n and on bare \r, so carriage-return progress
// redraws arrive as separate lines.
func scanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
