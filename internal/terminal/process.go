package terminal

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is a started terminal process and its exit state.
type Process struct {
	cmd  *exec.Cmd
	pid  int
	pgid int
	tty  *os.File

	done    chan struct{}
	waitErr error

	window    atomic.Uint64
	closeOnce sync.Once
	closers   []io.Closer
}

// StartCommand starts cmd in its own process group and tracks its exit.
func StartCommand(cmd *exec.Cmd) (*Process, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return Track(cmd, nil), nil
}

// Track wraps an already started command. tty, when set, is the pty master
// owned by the process; it is closed after exit.
func Track(cmd *exec.Cmd, tty *os.File, closers ...io.Closer) *Process {
	p := &Process{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		tty:     tty,
		done:    make(chan struct{}),
		closers: closers,
	}
	if pgid, err := unix.Getpgid(p.pid); err == nil {
		p.pgid = pgid
	}
	go p.wait()
	return p
}

func (p *Process) wait() {
	p.waitErr = p.cmd.Wait()
	p.close()
	close(p.done)
}

func (p *Process) close() {
	p.closeOnce.Do(func() {
		if p.tty != nil {
			_ = p.tty.Close()
		}
		for _, c := range p.closers {
			_ = c.Close()
		}
	})
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.pid
}

// TTY returns the pty master, or nil when the terminal owns its own tty.
func (p *Process) TTY() *os.File {
	return p.tty
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the wait error once the process exited.
func (p *Process) Err() error {
	if !p.Exited() {
		return nil
	}
	return p.waitErr
}

// Window returns the cached native window id of the terminal, 0 if unknown.
func (p *Process) Window() uint64 {
	return p.window.Load()
}

// SetWindow caches the native window id of the terminal.
func (p *Process) SetWindow(id uint64) {
	p.window.Store(id)
}

// Signal delivers sig to the process group and every descendant. Signalling
// an exited process is a no-op.
func (p *Process) Signal(sig syscall.Signal) error {
	if p.Exited() {
		return nil
	}
	if p.pid <= 0 {
		return errors.New("invalid process id")
	}
	children, _ := listProcessChildren(p.pid)
	var err error
	switch {
	case p.pgid > 0:
		err = unix.Kill(-p.pgid, sig)
	default:
		err = unix.Kill(-p.pid, sig)
	}
	if err != nil {
		err = p.cmd.Process.Signal(sig)
	}
	for _, pid := range children {
		_ = unix.Kill(pid, sig)
	}
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Children lists the live descendants of the process.
func (p *Process) Children() []int {
	children, _ := listProcessChildren(p.pid)
	return children
}

func listProcessChildren(root int) ([]int, error) {
	if root <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	parents := make(map[int][]int)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		ppid, err := readPPid(pid)
		if err != nil {
			continue
		}
		parents[ppid] = append(parents[ppid], pid)
	}
	var out []int
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range parents[cur] {
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out, nil
}

func readPPid(pid int) (int, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, err
	}
	for line := range strings.SplitSeq(string(data), "\n") {
		if !strings.HasPrefix(line, "PPid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, errors.New("ppid missing")
		}
		return strconv.Atoi(fields[1])
	}
	return 0, errors.New("ppid not found")
}
