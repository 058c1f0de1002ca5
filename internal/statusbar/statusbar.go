// Package statusbar writes the highlighted lyric line to a status file and
// optionally asks i3blocks to refresh through a signal.
package statusbar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"lyric-player/pkg/fileutil"
)

const (
	DefaultProcess         = "i3blocks"
	DefaultRefreshInterval = 10 * time.Second
)

// ErrProcessNotFound is returned when no status bar process is running.
var ErrProcessNotFound = errors.New("status bar process not found")

func logger() *zerolog.Logger {
	l := log.With().Str("component", "statusbar").Logger()
	return &l
}

type Options struct {
	// StatusFile receives every line, skipped when empty.
	StatusFile string
	// Signal enables SIGUSR1 to the status bar process on each new line.
	Signal bool
	// Process name of the status bar, DefaultProcess when empty.
	Process string
	// MaxWidth truncates lines to this many terminal cells, 0 disables.
	MaxWidth int
	// RefreshInterval between PID lookups, DefaultRefreshInterval when zero.
	RefreshInterval time.Duration
}

// Bar tracks the status bar PID and pushes lyric lines to it.
type Bar struct {
	opts Options

	mu   sync.Mutex
	pid  int
	last string

	// replaced in tests
	findPID func(name string) (int, error)
	signal  func(pid int, sig syscall.Signal) error

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func New(opts Options) *Bar {
	if opts.Process == "" {
		opts.Process = DefaultProcess
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	return &Bar{
		opts:     opts,
		pid:      -1,
		findPID:  findPID,
		signal:   sendSignal,
		stopChan: make(chan struct{}),
	}
}

// Start begins refreshing the PID periodically. It does nothing when
// signalling is disabled.
func (b *Bar) Start() {
	if !b.opts.Signal {
		return
	}
	b.mu.Lock()
	if b.done != nil {
		b.mu.Unlock()
		return
	}
	b.done = make(chan struct{})
	b.mu.Unlock()

	if err := b.RefreshPID(); err != nil {
		logger().Debug().Err(err).Msg("Initial PID lookup failed")
	}
	go b.monitorLoop()
	logger().Info().Str("process", b.opts.Process).Msg("Status bar controller started")
}

func (b *Bar) monitorLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := b.RefreshPID(); err != nil {
				logger().Debug().Err(err).Msg("Failed to refresh status bar PID")
			}
		case <-b.stopChan:
			return
		}
	}
}

func (b *Bar) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.mu.Lock()
		done := b.done
		b.mu.Unlock()
		if done != nil {
			<-done
		}
	})
}

// RefreshPID looks the status bar process up again.
func (b *Bar) RefreshPID() error {
	pid, err := b.findPID(b.opts.Process)

	b.mu.Lock()
	old := b.pid
	if err != nil {
		b.pid = -1
	} else {
		b.pid = pid
	}
	b.mu.Unlock()

	if err != nil {
		return err
	}
	if old != pid {
		logger().Info().Int("old_pid", old).Int("pid", pid).Msg("Status bar PID updated")
	}
	return nil
}

func (b *Bar) PID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pid
}

// Update writes text to the status file and signals the status bar. Repeated
// text is ignored.
func (b *Bar) Update(text string) error {
	text = truncate(text, b.opts.MaxWidth)

	b.mu.Lock()
	if text == b.last {
		b.mu.Unlock()
		return nil
	}
	b.last = text
	pid := b.pid
	b.mu.Unlock()

	if b.opts.StatusFile != "" {
		if err := fileutil.WriteFileOverwrite(b.opts.StatusFile, []byte(text+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write status file: %w", err)
		}
	}
	if !b.opts.Signal {
		return nil
	}
	if pid <= 0 {
		return ErrProcessNotFound
	}
	if err := b.signal(pid, syscall.SIGUSR1); err != nil {
		return fmt.Errorf("failed to send SIGUSR1 to process %d: %w", pid, err)
	}
	return nil
}

// cells measures display width independent of the locale, so ambiguous
// runes such as the ellipsis count as one cell.
var cells = func() *runewidth.Condition {
	c := runewidth.NewCondition()
	c.EastAsianWidth = false
	return c
}()

// truncate cuts text to width display cells. Wide runes count as two.
func truncate(text string, width int) string {
	if width <= 0 || cells.StringWidth(text) <= width {
		return text
	}
	return cells.Truncate(text, width, "…")
}

func sendSignal(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(sig)
}

// findPID returns the lowest PID whose executable name is name.
func findPID(name string) (int, error) {
	procs, err := process.Processes()
	if err != nil {
		return -1, fmt.Errorf("failed to list processes: %w", err)
	}
	infos := make([]procInfo, 0, len(procs))
	for _, p := range procs {
		pname, _ := p.Name()
		cmdline, _ := p.Cmdline()
		infos = append(infos, procInfo{pid: int(p.Pid), name: pname, cmdline: cmdline})
	}
	if pid, ok := pickPID(infos, name, os.Getpid()); ok {
		return pid, nil
	}
	return -1, ErrProcessNotFound
}

type procInfo struct {
	pid     int
	name    string
	cmdline string
}

// pickPID matches the process name, or the base name of argv[0] for
// processes started through a wrapper. self is never picked.
func pickPID(procs []procInfo, name string, self int) (int, bool) {
	best := -1
	for _, p := range procs {
		if p.pid == self || p.pid <= 0 {
			continue
		}
		argv0 := ""
		if fields := strings.Fields(p.cmdline); len(fields) > 0 {
			argv0 = filepath.Base(fields[0])
		}
		if p.name != name && argv0 != name {
			continue
		}
		if best < 0 || p.pid < best {
			best = p.pid
		}
	}
	return best, best > 0
}
