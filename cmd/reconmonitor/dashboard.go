package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// dashboard prints a periodically-refreshed status line (ingest rate,
// ring occupancy, GPU buffer flip count) to a raw-mode terminal and
// watches stdin for 'q' to request shutdown. Grounded on
// terminal_host.go's TerminalHost: term.MakeRaw/term.Restore around a
// non-blocking syscall.Read loop in its own goroutine, rather than the
// buffered line-oriented reads a cooked terminal would need.
type dashboard struct {
	stats *stats

	fd          int
	oldState    *term.State
	nonblockSet bool

	stopCh      chan struct{}
	done        chan struct{}
	readStarted bool
	stopOnce    sync.Once

	quit func()
}

func newDashboard(st *stats, quit func()) *dashboard {
	return &dashboard{stats: st, stopCh: make(chan struct{}), done: make(chan struct{}), quit: quit}
}

// Start puts stdin into raw, non-blocking mode and launches the input
// and status-printing goroutines. If raw mode can't be set (stdin isn't
// a terminal, e.g. under a CI runner) it logs once and prints status
// updates without keyboard control, rather than failing the viewer.
func (d *dashboard) Start() {
	d.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(d.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconmonitor: stdin is not a terminal, status line only: %v\n", err)
		go d.printLoop()
		return
	}
	d.oldState = oldState

	if err := syscall.SetNonblock(d.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "reconmonitor: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(d.fd, d.oldState)
		d.oldState = nil
		go d.printLoop()
		return
	}
	d.nonblockSet = true
	d.readStarted = true

	go d.readLoop()
	go d.printLoop()
}

func (d *dashboard) readLoop() {
	defer close(d.done)
	buf := make([]byte, 1)
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		n, err := syscall.Read(d.fd, buf)
		if n > 0 && (buf[0] == 'q' || buf[0] == 0x1B) {
			if d.quit != nil {
				d.quit()
			}
			return
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
		if n == 0 {
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func (d *dashboard) printLoop() {
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	var lastIngested int64
	for {
		select {
		case <-d.stopCh:
			return
		case <-t.C:
			ingested := d.stats.framesIngested.Load()
			rate := float64(ingested-lastIngested) * 2 // per 500ms tick -> Hz
			lastIngested = ingested
			fmt.Fprintf(os.Stdout, "\r\x1b[Kingest=%.1f/s dropped=%d revolutions=%d ring=%d flips=%d previews=%d slices=%d (q to quit)",
				rate,
				d.stats.framesDropped.Load(),
				d.stats.revolutions.Load(),
				d.stats.ringOccupancy.Load(),
				d.stats.bufferFlips.Load(),
				d.stats.previewPayloads.Load(),
				d.stats.slicePayloads.Load(),
			)
		}
	}
}

// Stop restores the terminal and halts both goroutines.
func (d *dashboard) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	if d.readStarted {
		<-d.done
	}
	if d.nonblockSet {
		_ = syscall.SetNonblock(d.fd, false)
		d.nonblockSet = false
	}
	if d.oldState != nil {
		_ = term.Restore(d.fd, d.oldState)
		d.oldState = nil
	}
	fmt.Println()
}
