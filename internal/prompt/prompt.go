// Package prompt assembles the instruction and user blocks sent to the model.
package prompt

import "strings"

// Delimiters the model must wrap each generated file in.
const (
	DesignOpen  = "<DESIGN>"
	DesignClose = "</DESIGN>"
	TBOpen      = "<TB>"
	TBClose     = "</TB>"
)

// System is sent unchanged on every attempt.
const System = `Return exactly two SystemVerilog files.

FILE design.sv:
- Exactly one top-level module, named dut
- Every input port has an explicit width
- Every output port has an explicit width
- Every intermediate arithmetic expression uses an explicit width
- Sequential logic, when needed, uses always_ff @(posedge clk)
- Only add clk and rst inputs when sequential logic is required
- No latches unless the request explicitly asks for one

FILE tb.sv:
- Instantiates the dut module
- If the design has a clock, toggle it with: always #5 clk = ~clk;
- If the design has a reset, assert it at time zero and then deassert it
- Checks every expected value with assert
- Ends the simulation with $finish
- Calls $dumpfile and $dumpvars so a VCD trace is written

Output rules:
- Raw SystemVerilog only
- No markdown, no code fences
- No commentary or prose
- Nothing outside the two sections below

` + DesignOpen + `
(code)
` + DesignClose + `
` + TBOpen + `
(code)
` + TBClose

// Prompt is the pair of blocks for one model request.
type Prompt struct {
	System string
	User   string
}

// Build returns the prompt for spec. A non-blank diagnostic from the previous
// attempt is appended to the user block.
func Build(spec, diagnostic string) Prompt {
	var b strings.Builder
	b.WriteString("Spec:\n")
	b.WriteString(strings.TrimSpace(spec))
	b.WriteString("\n")
	if d := strings.TrimSpace(diagnostic); d != "" {
		b.WriteString("\nErrors from the previous attempt:\n")
		b.WriteString(d)
		b.WriteString("\n")
	}
	return Prompt{System: System, User: b.String()}
}
