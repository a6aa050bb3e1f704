package quiz

import (
	"errors"
	"fmt"
)

var (
	ErrNoPoll           = errors.New("no quiz data")
	ErrPollFinalized    = errors.New("poll already processed")
	ErrNoData           = errors.New("no leaderboard data")
	ErrUnknownPoll      = errors.New("poll is not tracked")
	ErrOptionOutOfRange = errors.New("option index out of range")
)

// ValidationError is bad operator input during authoring. The draft keeps
// everything it already collected.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// PersistenceError wraps a storage failure. The triggering command changed
// nothing in memory.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
