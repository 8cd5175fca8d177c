package agent

import (
	"fmt"
	"io"
)

// Reporter receives the user-facing progress of a run.
type Reporter interface {
	AttemptStarted(index int)
	ModelFailed(err error)
	FormatFailure()
	ToolchainFailed(diagnostic string)
	Passed()
	Exhausted()
}

// ConsoleReporter prints progress lines to W.
type ConsoleReporter struct {
	W io.Writer
}

func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{W: w}
}

func (r *ConsoleReporter) AttemptStarted(index int) {
	fmt.Fprintf(r.W, "\nATTEMPT %d\n", index)
}

func (r *ConsoleReporter) ModelFailed(err error) {
	fmt.Fprintln(r.W, err.Error())
}

func (r *ConsoleReporter) FormatFailure() {
	fmt.Fprintln(r.W, "Format failure")
}

func (r *ConsoleReporter) ToolchainFailed(diagnostic string) {
	fmt.Fprintln(r.W, "Verilator failed:")
	fmt.Fprintln(r.W, diagnostic)
}

func (r *ConsoleReporter) Passed() {
	fmt.Fprintln(r.W, "PASS")
}

func (r *ConsoleReporter) Exhausted() {
	fmt.Fprintln(r.W, "FAILED AFTER MAX ATTEMPTS")
}

type nopReporter struct{}

func (nopReporter) AttemptStarted(int)     {}
func (nopReporter) ModelFailed(error)      {}
func (nopReporter) FormatFailure()         {}
func (nopReporter) ToolchainFailed(string) {}
func (nopReporter) Passed()                {}
func (nopReporter) Exhausted()             {}
