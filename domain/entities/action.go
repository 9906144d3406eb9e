package entities

import (
	"fmt"
	"time"
)

// ActionType represents the kind of step a script can perform
type ActionType string

const (
	ActionClick ActionType = "click"
	ActionFill  ActionType = "fill"
	ActionWait  ActionType = "wait"
)

// Action represents a single parsed step of a script.
// Click and Fill carry a selector and the locator name used to look it up
// and heal it; Wait only carries a duration.
type Action struct {
	Type         ActionType `json:"type"`
	Selector     string     `json:"selector,omitempty"`
	Value        string     `json:"value,omitempty"`
	Name         string     `json:"name,omitempty"`
	Milliseconds int        `json:"milliseconds,omitempty"`
}

// Click builds a click action
func Click(selector, name string) Action {
	return Action{Type: ActionClick, Selector: selector, Name: locatorKey(selector, name)}
}

// Fill builds a fill action
func Fill(selector, value, name string) Action {
	return Action{Type: ActionFill, Selector: selector, Value: value, Name: locatorKey(selector, name)}
}

// Wait builds a wait action
func Wait(ms int) Action {
	return Action{Type: ActionWait, Milliseconds: ms}
}

// NeedsLocator reports whether the action targets an element
func (a Action) NeedsLocator() bool {
	return a.Type == ActionClick || a.Type == ActionFill
}

// Duration returns the wait duration of a Wait action
func (a Action) Duration() time.Duration {
	return time.Duration(a.Milliseconds) * time.Millisecond
}

// Describe returns a short human readable description used in status messages
func (a Action) Describe(selector string) string {
	switch a.Type {
	case ActionClick:
		return fmt.Sprintf("Clicked: %s", selector)
	case ActionFill:
		return fmt.Sprintf("Filled: %s with %q", selector, a.Value)
	case ActionWait:
		return fmt.Sprintf("Waited %dms", a.Milliseconds)
	default:
		return string(a.Type)
	}
}

// locatorKey falls back to the literal selector when the script gives no name
func locatorKey(selector, name string) string {
	if name != "" {
		return name
	}
	return selector
}
