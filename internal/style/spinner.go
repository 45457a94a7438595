package style

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

type Spinner interface {
	SetSuffix(suffix string)
	SetFinalMSG(finalMSG string)
	Start()
	Stop()
}

// TestSpinner is a spinner implementation for testing that outputs each
// spinner update on a new line instead of clearing and redrawing
type TestSpinner struct {
	mu       sync.Mutex
	Suffix   string
	FinalMSG string
	Writer   io.Writer
	color    func(a ...interface{}) string
	active   bool
}

// NewTestSpinner creates a TestSpinner writing to w
func NewTestSpinner(w io.Writer) *TestSpinner {
	return &TestSpinner{
		Writer: w,
		color:  color.New(color.FgWhite).SprintFunc(),
	}
}

func (s *TestSpinner) SetSuffix(suffix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.Writer, s.color("[SET SUFFIX] "+suffix))
	s.Suffix = suffix
}

func (s *TestSpinner) SetFinalMSG(finalMSG string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinalMSG = finalMSG
}

// Start will start the indicator.
func (s *TestSpinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}

	s.active = true
	fmt.Fprintln(s.Writer, s.color("[SPINNER START]"))
}

// Stop stops the indicator.
func (s *TestSpinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}

	s.active = false
	fmt.Fprintln(s.Writer, s.color("[SPINNER STOP]"))
	if s.FinalMSG != "" {
		fmt.Fprintln(s.Writer, s.color("[FINAL MSG] "+s.FinalMSG))
	}
}

type TerminalSpinner struct {
	spinner *spinner.Spinner
}

func NewTerminalSpinner(cs []string, d time.Duration, options ...spinner.Option) *TerminalSpinner {
	return &TerminalSpinner{
		spinner: spinner.New(cs, d, options...),
	}
}

func (s *TerminalSpinner) SetSuffix(suffix string) {
	s.spinner.Lock()
	s.spinner.Suffix = suffix
	s.spinner.Unlock()
}

func (s *TerminalSpinner) SetFinalMSG(finalMSG string) {
	s.spinner.Lock()
	s.spinner.FinalMSG = finalMSG
	s.spinner.Unlock()
}

func (s *TerminalSpinner) Start() {
	s.spinner.Start()
}

func (s *TerminalSpinner) Stop() {
	s.spinner.Stop()
}

// NewSpinner returns a terminal spinner, or a line-based one when EMO_TEST is set
func NewSpinner(w io.Writer) Spinner {
	if os.Getenv("EMO_TEST") == "true" {
		return NewTestSpinner(w)
	}

	return NewTerminalSpinner(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w), spinner.WithColor("magenta"))
}
