package domain

import "errors"

var (
	// ErrNotFound is returned when no match exists for a code.
	ErrNotFound = errors.New("match not found")
	// ErrInvalidPin is returned when a join supplies the wrong PIN.
	ErrInvalidPin = errors.New("invalid match pin")
	// ErrAuthRequired is returned when no caller identity is available, or the
	// caller is not allowed to perform the operation.
	ErrAuthRequired = errors.New("caller identity required")
	// ErrAlreadyStarted is returned when a lobby-only operation hits a started match.
	ErrAlreadyStarted = errors.New("match already started")
	// ErrNotBalanced is returned when a start is attempted while teams are
	// empty, unequal, or over the size cap.
	ErrNotBalanced = errors.New("teams not balanced")
	// ErrTeamFull is returned when a join would exceed the team size cap.
	ErrTeamFull = errors.New("team is full")
	// ErrInvalidQuestionState indicates corrupt or missing question data. It is
	// always logged and never allowed to crash a session.
	ErrInvalidQuestionState = errors.New("invalid question state")
	// ErrNoQuestions is returned when even the fallback question pool is empty.
	ErrNoQuestions = errors.New("no usable questions available")
	// ErrCodeTaken is returned by stores when a match code is already in use.
	ErrCodeTaken = errors.New("match code already taken")
	// ErrTransportFailure wraps store transport errors.
	ErrTransportFailure = errors.New("match store unreachable")
)
