package internal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type Spinner struct {
	interval time.Duration
	message  string
	writer   io.Writer
	active   bool
	mu       sync.Mutex
	done     chan struct{}
}

func NewSpinner(message string) *Spinner {
	return &Spinner{
		interval: 100 * time.Millisecond,
		message:  message,
		writer:   os.Stdout,
		done:     make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	go func() {
		frameIndex := 0
		for {
			select {
			case <-s.done:
				s.clearLine()
				return
			default:
				s.mu.Lock()
				frame := spinnerFrames[frameIndex%len(spinnerFrames)]
				fmt.Fprintf(s.writer, "\r%s %s", frame, s.message)
				s.mu.Unlock()

				frameIndex++
				time.Sleep(s.interval)
			}
		}
	}()
}

func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}

	s.active = false
	close(s.done)
	s.done = make(chan struct{})
}

func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.writer, "\r✅ %s\n", message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	fmt.Fprintf(s.writer, "\r❌ %s\n", message)
}

func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

func (s *Spinner) clearLine() {
	fmt.Fprint(s.writer, "\r\033[K")
}

// SimpleSpinner runs operation behind an animated spinner and prints a
// one-line ✅/❌ result. In verbose mode the spinner is skipped entirely.
func SimpleSpinner(message string, operation func() error) error {
	if VerboseMode {
		return operation()
	}

	done := make(chan bool)
	errCh := make(chan error)

	go func() {
		i := 0
		for {
			select {
			case <-done:
				return
			default:
				fmt.Printf("\r%s %s", spinnerFrames[i%len(spinnerFrames)], message)
				i++
				time.Sleep(100 * time.Millisecond)
			}
		}
	}()

	go func() {
		errCh <- operation()
	}()

	err := <-errCh
	done <- true

	fmt.Print("\r\033[K")
	if err != nil {
		fmt.Printf("❌ Failed: %s", message)
	} else {
		fmt.Printf("✅ %s", message)
	}

	return err
}

// FinishLine moves to the next line after a series of related operations.
func FinishLine() {
	if !VerboseMode {
		fmt.Print("\n")
	}
}
