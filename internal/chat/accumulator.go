package chat

import "slices"

// State is a transcript plus the position of the assistant turn that the
// current run is building. The zero value is an empty transcript with no
// turn in progress.
type State struct {
	Turns []Turn
	// open is the 1-based index of this run's assistant turn; 0 means the
	// run has not produced a fragment yet.
	open int
}

// NewState starts a run on top of an existing conversation.
func NewState(turns []Turn) State {
	return State{Turns: slices.Clone(turns)}
}

// Transcript returns a copy of the turns.
func (s State) Transcript() Transcript {
	return slices.Clone(Transcript(s.Turns))
}

// Reply returns the content of the run's assistant turn.
func (s State) Reply() (string, bool) {
	if s.open == 0 {
		return "", false
	}
	return s.Turns[s.open-1].Content, true
}

// ApplyFragment extends the run's assistant turn with fragment, appending a
// new assistant turn on the first fragment. s is not modified.
func ApplyFragment(s State, fragment string) State {
	if fragment == "" {
		return s
	}
	turns := slices.Clone(s.Turns)
	if s.open != 0 && s.open == len(turns) && turns[s.open-1].Role == RoleAssistant {
		turns[s.open-1].Content += fragment
		return State{Turns: turns, open: s.open}
	}
	turns = append(turns, Turn{Role: RoleAssistant, Content: fragment})
	return State{Turns: turns, open: len(turns)}
}

// Accumulator folds fragments into a State and notifies an observer after
// each one. One Accumulator serves exactly one run.
type Accumulator struct {
	state    State
	observer Observer
}

// NewAccumulator starts a run on top of turns. observer may be nil.
func NewAccumulator(turns []Turn, observer Observer) *Accumulator {
	return &Accumulator{state: NewState(turns), observer: observer}
}

// Apply adds a fragment. Empty fragments are ignored and not published.
func (a *Accumulator) Apply(fragment string) {
	if fragment == "" {
		return
	}
	a.state = ApplyFragment(a.state, fragment)
	if a.observer != nil {
		a.observer(a.state.Transcript())
	}
}

// Transcript returns the latest transcript.
func (a *Accumulator) Transcript() Transcript { return a.state.Transcript() }

// Reply returns the assistant text accumulated so far.
func (a *Accumulator) Reply() string {
	reply, _ := a.state.Reply()
	return reply
}
