package entities

// ExecutionState represents the state of an execution session
type ExecutionState string

const (
	StateIdle                 ExecutionState = "idle"
	StateRunning              ExecutionState = "running"
	StateWaitingForCorrection ExecutionState = "waiting_for_correction"
	StateSucceeded            ExecutionState = "succeeded"
	StateFailed               ExecutionState = "failed"
)

// Active reports whether a session in this state blocks a new execution
func (s ExecutionState) Active() bool {
	return s == StateRunning || s == StateWaitingForCorrection
}

// Terminal reports whether the state ends the session
func (s ExecutionState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ExecutionSession is one run of one script against one start URL
type ExecutionSession struct {
	ID      string         `json:"id"`
	Actions []Action       `json:"actions"`
	URL     string         `json:"url"`
	Cursor  int            `json:"cursor"`
	State   ExecutionState `json:"state"`
}

// Current returns the action under the cursor
func (s *ExecutionSession) Current() (Action, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Actions) {
		return Action{}, false
	}
	return s.Actions[s.Cursor], true
}

// Advance moves the cursor and reports whether actions remain
func (s *ExecutionSession) Advance() bool {
	s.Cursor++
	return s.Cursor < len(s.Actions)
}

// ExecuteRequest is the payload of an execute_script event
type ExecuteRequest struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}
