package quiz

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const minOptions = 2

type DraftState int

const (
	Idle DraftState = iota
	AwaitingQuestion
	AwaitingOptions
	AwaitingCorrectIndex
)

func (s DraftState) String() string {
	switch s {
	case AwaitingQuestion:
		return "awaiting question"
	case AwaitingOptions:
		return "awaiting options"
	case AwaitingCorrectIndex:
		return "awaiting correct answer"
	}
	return "idle"
}

// Draft is an operator's quiz before it is broadcast.
type Draft struct {
	Operator string
	Chat     string
	Question string
	Options  []string
	State    DraftState
	touched  time.Time
}

// Quiz is a completed draft, ready to broadcast.
type Quiz struct {
	Question     string
	Options      []string
	CorrectIndex int
}

type StepKind int

const (
	QuestionSet StepKind = iota + 1
	OptionAdded
	OptionsClosed
	Completed
)

// Step reports what a message did to a draft.
type Step struct {
	Kind    StepKind
	Options int
	Quiz    Quiz
}

// Limits caps what a draft may hold so the transport can post it. Zero
// fields are unlimited. Lengths count characters, not bytes.
type Limits struct {
	MaxOptions     int
	MaxOptionLen   int
	MaxQuestionLen int
}

// Sessions holds one draft per operator. Drafts never share state, so one
// operator's commands cannot disturb another's draft.
type Sessions struct {
	drafts map[string]*Draft
	now    func() time.Time
	limits Limits
}

func NewSessions(now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{drafts: make(map[string]*Draft), now: now}
}

// SetLimits applies to every message accepted afterwards.
func (s *Sessions) SetLimits(l Limits) {
	s.limits = l
}

// Begin starts a new draft, discarding any previous one. chat is where the
// operator is talking to the bot.
func (s *Sessions) Begin(operator, chat string) {
	s.drafts[operator] = &Draft{Operator: operator, Chat: chat, State: AwaitingQuestion, touched: s.now()}
}

func (s *Sessions) State(operator string) DraftState {
	if d, ok := s.drafts[operator]; ok {
		return d.State
	}
	return Idle
}

// Draft returns a copy of the operator's draft.
func (s *Sessions) Draft(operator string) (Draft, bool) {
	d, ok := s.drafts[operator]
	if !ok {
		return Draft{}, false
	}
	out := *d
	out.Options = append([]string(nil), d.Options...)
	return out, true
}

// Cancel discards the draft. It reports whether there was one.
func (s *Sessions) Cancel(operator string) bool {
	_, ok := s.drafts[operator]
	delete(s.drafts, operator)
	return ok
}

// Finish drops a draft after its poll went out.
func (s *Sessions) Finish(operator string) {
	delete(s.drafts, operator)
}

func (s *Sessions) Clear() {
	s.drafts = make(map[string]*Draft)
}

func (s *Sessions) Len() int { return len(s.drafts) }

// Accept feeds a free-text message to the operator's draft.
func (s *Sessions) Accept(operator, text string) (Step, error) {
	d, ok := s.drafts[operator]
	if !ok {
		return Step{}, &ValidationError{Field: "draft", Msg: "no quiz is being created"}
	}
	d.touched = s.now()

	text = strings.TrimSpace(text)
	switch d.State {
	case AwaitingQuestion:
		if text == "" {
			return Step{}, &ValidationError{Field: "question", Msg: "the question cannot be empty"}
		}
		if tooLong(text, s.limits.MaxQuestionLen) {
			return Step{}, &ValidationError{
				Field: "question",
				Msg:   fmt.Sprintf("the question can be at most %d characters long", s.limits.MaxQuestionLen),
			}
		}
		d.Question = text
		d.Options = []string{}
		d.State = AwaitingOptions
		return Step{Kind: QuestionSet}, nil

	case AwaitingOptions:
		if text == "" {
			return Step{}, &ValidationError{Field: "option", Msg: "an option cannot be empty"}
		}
		if limit := s.limits.MaxOptions; limit > 0 && len(d.Options) >= limit {
			return Step{}, &ValidationError{
				Field: "options",
				Msg:   fmt.Sprintf("a quiz can have at most %d options, finish it with done", limit),
			}
		}
		if tooLong(text, s.limits.MaxOptionLen) {
			return Step{}, &ValidationError{
				Field: "option",
				Msg:   fmt.Sprintf("an option can be at most %d characters long", s.limits.MaxOptionLen),
			}
		}
		d.Options = append(d.Options, text)
		return Step{Kind: OptionAdded, Options: len(d.Options)}, nil

	case AwaitingCorrectIndex:
		n, err := strconv.Atoi(text)
		if err != nil {
			return Step{}, &ValidationError{Field: "answer", Msg: "please enter a number"}
		}
		if n-1 < 0 || n-1 >= len(d.Options) {
			return Step{}, &ValidationError{
				Field: "answer",
				Msg:   "pick a number between 1 and " + strconv.Itoa(len(d.Options)),
			}
		}
		return Step{Kind: Completed, Quiz: Quiz{
			Question:     d.Question,
			Options:      append([]string(nil), d.Options...),
			CorrectIndex: n - 1,
		}}, nil
	}
	return Step{}, &ValidationError{Field: "draft", Msg: "no quiz is being created"}
}

func tooLong(text string, limit int) bool {
	return limit > 0 && utf8.RuneCountInString(text) > limit
}

// Done closes the option list once it holds at least two options.
func (s *Sessions) Done(operator string) (Step, error) {
	d, ok := s.drafts[operator]
	if !ok {
		return Step{}, &ValidationError{Field: "draft", Msg: "no quiz is being created"}
	}
	d.touched = s.now()

	switch d.State {
	case AwaitingQuestion:
		return Step{}, &ValidationError{Field: "question", Msg: "send the question first"}
	case AwaitingCorrectIndex:
		return Step{}, &ValidationError{Field: "answer", Msg: "send the number of the correct answer"}
	}
	if len(d.Options) < minOptions {
		return Step{}, &ValidationError{Field: "options", Msg: "at least 2 answer options are required"}
	}
	d.State = AwaitingCorrectIndex
	return Step{Kind: OptionsClosed, Options: len(d.Options)}, nil
}

// Expire drops drafts idle for longer than ttl and returns them.
func (s *Sessions) Expire(ttl time.Duration) []Draft {
	if ttl <= 0 {
		return nil
	}
	cutoff := s.now().Add(-ttl)
	var expired []Draft
	for op, d := range s.drafts {
		if d.touched.Before(cutoff) {
			expired = append(expired, *d)
			delete(s.drafts, op)
		}
	}
	return expired
}
