// Package progress draws progress indicators on stderr. Nothing is drawn
// when stderr is not a terminal, so scripted output stays clean.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// minItems is the smallest total worth a counter.
const minItems = 5

// clearWidth is how many columns Done and Stop blank out.
const clearWidth = 60

func isTerminal() bool { return term.IsTerminal(int(os.Stderr.Fd())) }

func clearLine(w io.Writer) {
	fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", clearWidth))
}

// Progress is a counter for a known number of items.
type Progress struct {
	w       io.Writer
	label   string
	total   int
	current int
	isTTY   bool
}

// New creates a counter that writes to stderr. Totals below minItems
// draw nothing.
func New(label string, total int) *Progress {
	return &Progress{
		w:     os.Stderr,
		label: label,
		total: total,
		isTTY: isTerminal(),
	}
}

// Increment advances the counter by one.
func (p *Progress) Increment() {
	p.current++
}

// Print redraws the counter in place.
func (p *Progress) Print() {
	if !p.isTTY || p.total < minItems {
		return
	}
	pct := (p.current * 100) / p.total
	fmt.Fprintf(p.w, "\r%s... %d/%d (%d%%)", p.label, p.current, p.total, pct)
}

// Done clears the counter line.
func (p *Progress) Done() {
	if !p.isTTY || p.total < minItems {
		return
	}
	clearLine(p.w)
}

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates while work of unknown length runs, such as a queued
// conversion. The label can change while it spins.
type Spinner struct {
	w        io.Writer
	interval time.Duration
	isTTY    bool

	mu    sync.Mutex
	label string
	stop  chan struct{}
	done  chan struct{}
}

// NewSpinner creates a spinner that writes to stderr.
func NewSpinner(label string) *Spinner {
	return &Spinner{
		w:        os.Stderr,
		label:    label,
		interval: 100 * time.Millisecond,
		isTTY:    isTerminal(),
	}
}

// SetLabel changes the text shown beside the spinner.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

// Start begins animating. Calling Start on a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isTTY || s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.spin(s.stop, s.done)
}

func (s *Spinner) spin(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for i := 0; ; i++ {
		s.mu.Lock()
		fmt.Fprintf(s.w, "\r%s %s...", frames[i%len(frames)], s.label)
		s.mu.Unlock()
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	clearLine(s.w)
}
