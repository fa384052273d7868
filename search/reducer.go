// Package search holds the user-facing search state: the reducer that
// applies user actions to a query, and the sessions that gate those
// actions and present results.
package search

import "strings"

// State is the query a session is showing.
type State struct {
	Term string `json:"term"`
	Page int    `json:"page"`
}

// Initial is the state of a fresh session.
func Initial() State {
	return State{Page: 1}
}

// Action is a change requested by the user. The concrete types are
// [ActionSetTerm] and [ActionSetPage].
type Action interface {
	action()
}

// ActionSetTerm replaces the term and returns to the first page.
type ActionSetTerm struct {
	Term string
}

// ActionSetPage moves to another page of the current term.
type ActionSetPage struct {
	Page int
}

func (ActionSetTerm) action() {}
func (ActionSetPage) action() {}

// SetTerm builds an [ActionSetTerm].
func SetTerm(term string) Action {
	return ActionSetTerm{Term: term}
}

// SetPage builds an [ActionSetPage].
func SetPage(page int) Action {
	return ActionSetPage{Page: page}
}

// Reduce applies a to s. Pages below 1 are raised to 1.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case ActionSetTerm:
		return State{Term: strings.TrimSpace(a.Term), Page: 1}
	case ActionSetPage:
		return State{Term: s.Term, Page: max(1, a.Page)}
	default:
		return s
	}
}
