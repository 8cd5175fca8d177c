package agent

// State is a step of the attempt loop.
type State string

const (
	StateIdle          State = "idle"
	StatePrompting     State = "prompting"
	StateAwaitingModel State = "awaiting-model"
	StateParsing       State = "parsing"
	StateRunning       State = "running"
	StateRetrying      State = "retrying"
	StateSuccess       State = "success"
	StateExhausted     State = "exhausted"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateExhausted
}

// Outcome classifies how one attempt ended.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeFormatFailure  Outcome = "format-failure"
	OutcomeBuildFailure   Outcome = "build-failure"
	OutcomeRuntimeFailure Outcome = "runtime-failure"
	OutcomeRequestError   Outcome = "request-error"
	OutcomeConfigError    Outcome = "config-error"
	// OutcomeToolchainError means the toolchain could not be started at all.
	OutcomeToolchainError Outcome = "toolchain-error"
)

// MissingTags is fed back to the model when its reply lacks either section.
const MissingTags = "Missing <DESIGN> or <TB> tags"
