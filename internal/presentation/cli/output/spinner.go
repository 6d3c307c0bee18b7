package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a one-line progress indicator while a sync cycle runs.
// Start and Stop may be called from different goroutines; Stop is idempotent.
type Spinner struct {
	message string
	w       io.Writer
	color   bool

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// SpinnerOption configures a Spinner.
type SpinnerOption func(*Spinner)

// NewSpinner returns a spinner showing message on stdout.
func NewSpinner(message string, opts ...SpinnerOption) *Spinner {
	s := &Spinner{message: message, w: os.Stdout, color: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithSpinnerWriter sets the destination, usually stderr so JSON on stdout
// stays clean.
func WithSpinnerWriter(w io.Writer) SpinnerOption {
	return func(s *Spinner) { s.w = w }
}

func WithSpinnerColor(enabled bool) SpinnerOption {
	return func(s *Spinner) { s.color = enabled }
}

// Start begins the animation. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.done)
}

// Stop ends the animation and erases the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return
	}
	close(s.done)
	s.done = nil
	s.mu.Unlock()

	s.wg.Wait()
	_, _ = fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", len([]rune(s.message))+2))
}

func (s *Spinner) run(done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
			frame := spinnerFrames[i%len(spinnerFrames)]
			if s.color {
				frame = string(ColorCyan) + frame + string(ColorReset)
			}
			_, _ = fmt.Fprintf(s.w, "\r%s %s", frame, s.message)
		}
	}
}
