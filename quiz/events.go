package quiz

import "strings"

// Event is one incoming chat event. The set of implementations is closed:
// Command, FreeText, PollDefined, VoteCast and VoteRetracted.
type Event interface {
	kind() string
}

// Command is a prefixed operator command such as create_quiz or process.
// The done and cancel control tokens also arrive as commands.
type Command struct {
	Operator string
	Chat     string
	Name     string
	Args     string
	// Text is the message as sent.
	Text string
}

// FreeText is a plain message, consumed by the sender's draft if there is one.
type FreeText struct {
	Operator string
	Chat     string
	Text     string
}

// PollDefined is emitted by the transport once a poll exists.
type PollDefined struct {
	PollID       string
	Question     string
	Options      []string
	CorrectIndex int
}

type VoteCast struct {
	PollID      string
	Account     Account
	OptionIndex int
}

type VoteRetracted struct {
	PollID      string
	Account     Account
	OptionIndex int
}

func (Command) kind() string       { return "command" }
func (FreeText) kind() string      { return "free_text" }
func (PollDefined) kind() string   { return "poll_defined" }
func (VoteCast) kind() string      { return "vote_cast" }
func (VoteRetracted) kind() string { return "vote_retracted" }

// Account is the raw transport record of whoever voted.
type Account struct {
	ID       string
	Username string
}

// Identity derives the participant key: the public handle when set,
// otherwise the account id.
func Identity(a Account) string {
	if u := strings.TrimSpace(a.Username); u != "" {
		return u
	}
	return a.ID
}

// ParseCommand splits "<prefix>name args" into a Command. ok is false when
// text does not start with prefix or names nothing.
func ParseCommand(prefix, text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", "", false
	}
	body := strings.TrimSpace(text[len(prefix):])
	if body == "" {
		return "", "", false
	}
	name, args, _ = strings.Cut(body, " ")
	return strings.ToLower(name), strings.TrimSpace(args), true
}
