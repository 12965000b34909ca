package domain

// Stage identifies a position in the checkout commit state machine.
// The zero value StageIdle means no commit attempt is in flight.
type Stage string

const (
	StageIdle         Stage = ""
	StageInitializing Stage = "initializing"
	StageSending      Stage = "sending"
	StageProcessing   Stage = "processing"
	StageWaiting      Stage = "waiting"
	StageApproving    Stage = "approving"
	StageSuccess      Stage = "success"
	StageSaving       Stage = "saving"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

// String returns a readable name for the stage; the idle zero value
// renders as "idle" rather than the empty string.
func (s Stage) String() string {
	if s == StageIdle {
		return "idle"
	}
	return string(s)
}

// allowedTransitions defines the only legal edges of the state machine.
// The key is the current stage, the value the set of stages reachable
// from it. Anything not listed here is rejected, which is what prevents
// a slow retry from resurrecting a commit that already partially
// succeeded (e.g. success -> initializing is not an edge).
var allowedTransitions = map[Stage][]Stage{
	StageIdle:         {StageInitializing},
	StageInitializing: {StageSending, StageError},
	StageSending:      {StageProcessing, StageError},
	StageProcessing:   {StageApproving, StageWaiting, StageError},
	StageWaiting:      {StageProcessing, StageError},
	StageApproving:    {StageSuccess, StageError},
	StageSuccess:      {StageSaving, StageComplete, StageError},
	StageSaving:       {StageComplete, StageError},
	StageComplete:     {},
	StageError:        {},
}

// inFlightStages are the stages during which a second Commit call must
// be rejected by the double-write guard.
var inFlightStages = map[Stage]bool{
	StageInitializing: true,
	StageSending:      true,
	StageProcessing:   true,
	StageWaiting:      true,
	StageApproving:    true,
	StageSuccess:      true,
	StageSaving:       true,
}

// IsTerminal reports whether the stage is a sink that only an explicit
// reset can escape.
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageError
}

// IsInFlight reports whether a commit attempt is currently active.
func (s Stage) IsInFlight() bool {
	return inFlightStages[s]
}

// CanTransition reports whether the edge from -> to exists in the
// transition table.
func CanTransition(from, to Stage) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates the edge from -> to and returns the target stage.
// Illegal edges fail with a CommitError of kind KindInvalidTransition
// carrying both endpoints; this is a programming error in stage
// sequencing, never a user-facing condition.
func Transition(from, to Stage) (Stage, error) {
	if !CanTransition(from, to) {
		return from, InvalidTransition(from, to)
	}
	return to, nil
}

// Stages returns every named stage, including the terminal ones. Useful
// for exhaustive checks over the transition table.
func Stages() []Stage {
	return []Stage{
		StageIdle,
		StageInitializing,
		StageSending,
		StageProcessing,
		StageWaiting,
		StageApproving,
		StageSuccess,
		StageSaving,
		StageComplete,
		StageError,
	}
}
