package quiz

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/airylvat/quizpoll-bot/db"
	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/google/uuid"
)

const (
	// maxPendingVotes bounds the votes buffered for a poll that is not defined yet.
	maxPendingVotes = 1000
	// maxPendingPolls bounds how many undefined polls hold buffered votes.
	// The oldest is evicted first.
	maxPendingPolls = 64
)

type VotePolicy int

const (
	LastVoteWins VotePolicy = iota
	FirstVoteWins
	EveryVoteCounts
)

func (p VotePolicy) String() string {
	switch p {
	case FirstVoteWins:
		return "first-vote-wins"
	case EveryVoteCounts:
		return "every-vote-counts"
	}
	return "last-vote-wins"
}

// ParseVotePolicy accepts the policy names; empty means last-vote-wins.
func ParseVotePolicy(s string) (VotePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-vote-wins":
		return LastVoteWins, nil
	case "first-vote-wins":
		return FirstVoteWins, nil
	case "every-vote-counts":
		return EveryVoteCounts, nil
	}
	return LastVoteWins, fmt.Errorf("unknown vote policy %q", s)
}

// Poll is a broadcast quiz and the votes collected for it. Votes[i] lists the
// voters of option i in arrival order.
type Poll struct {
	ID string
	// Batch tags the ledger rows this poll produces.
	Batch        string
	Seq          uint64
	Question     string
	Options      []string
	CorrectIndex int
	Votes        [][]string
	Finalized    bool
}

type pendingVote struct {
	participant string
	option      int
	retract     bool
}

// Engine correlates vote events with the polls they belong to and commits
// scored results. It is not safe for concurrent use; the service calls it
// from its event loop only.
type Engine struct {
	store   db.Store
	policy  VotePolicy
	polls   map[string]*Poll
	pending map[string][]pendingVote
	// pendingOrder lists pending poll ids, oldest first.
	pendingOrder []string
	seq          uint64
	board        db.Leaderboard
	batchID      func() string
}

func NewEngine(store db.Store, policy VotePolicy) *Engine {
	return &Engine{
		store:   store,
		policy:  policy,
		polls:   make(map[string]*Poll),
		pending: make(map[string][]pendingVote),
		board:   db.Leaderboard{},
		batchID: uuid.NewString,
	}
}

// Load reads the persisted leaderboard into memory.
func (e *Engine) Load(ctx context.Context) error {
	board, err := e.store.LoadLeaderboard(ctx)
	if err != nil {
		return &PersistenceError{Op: "load leaderboard", Err: err}
	}
	if board == nil {
		board = db.Leaderboard{}
	}
	e.board = board
	return nil
}

func (e *Engine) Policy() VotePolicy { return e.policy }

// Leaderboard returns a copy of the current standings.
func (e *Engine) Leaderboard() db.Leaderboard {
	return e.board.Clone()
}

// OnPollDefined starts tracking a poll. A repeated id replaces the earlier
// record and becomes the most recent poll. Votes that arrived before the
// definition are replayed.
func (e *Engine) OnPollDefined(id, question string, options []string, correctIndex int) error {
	if correctIndex < 0 || correctIndex >= len(options) {
		return fmt.Errorf("poll %s: correct index %d: %w", id, correctIndex, ErrOptionOutOfRange)
	}

	e.seq++
	p := &Poll{
		ID:           id,
		Batch:        e.batchID(),
		Seq:          e.seq,
		Question:     question,
		Options:      append([]string(nil), options...),
		CorrectIndex: correctIndex,
		Votes:        make([][]string, len(options)),
	}
	for i := range p.Votes {
		p.Votes[i] = []string{}
	}
	e.polls[id] = p

	queued := e.dropPending(id)
	for _, v := range queued {
		var err error
		if v.retract {
			err = e.OnRetract(id, v.participant, v.option)
		} else {
			err = e.OnVote(id, v.participant, v.option)
		}
		if err != nil {
			logging.Log.WithField("poll_id", id).Warnf("dropping buffered vote: %v", err)
		}
	}
	return nil
}

// OnVote records participant's choice according to the vote policy. Votes for
// an unknown poll are buffered until it is defined.
func (e *Engine) OnVote(id, participant string, option int) error {
	p, ok := e.polls[id]
	if !ok {
		return e.buffer(id, pendingVote{participant: participant, option: option})
	}
	if p.Finalized {
		return fmt.Errorf("poll %s: %w", id, ErrPollFinalized)
	}
	if option < 0 || option >= len(p.Options) {
		return fmt.Errorf("poll %s: option %d: %w", id, option, ErrOptionOutOfRange)
	}

	switch e.policy {
	case FirstVoteWins:
		if p.hasVoted(participant) {
			return nil
		}
	case LastVoteWins:
		p.removeEverywhere(participant)
	}
	p.Votes[option] = append(p.Votes[option], participant)
	return nil
}

// OnRetract removes one vote of participant from option.
func (e *Engine) OnRetract(id, participant string, option int) error {
	p, ok := e.polls[id]
	if !ok {
		return e.buffer(id, pendingVote{participant: participant, option: option, retract: true})
	}
	if p.Finalized {
		return fmt.Errorf("poll %s: %w", id, ErrPollFinalized)
	}
	if option < 0 || option >= len(p.Options) {
		return fmt.Errorf("poll %s: option %d: %w", id, option, ErrOptionOutOfRange)
	}
	if i := slices.Index(p.Votes[option], participant); i >= 0 {
		p.Votes[option] = slices.Delete(p.Votes[option], i, i+1)
	}
	return nil
}

func (e *Engine) buffer(id string, v pendingVote) error {
	queued, ok := e.pending[id]
	if len(queued) >= maxPendingVotes {
		return fmt.Errorf("poll %s: too many votes before definition: %w", id, ErrUnknownPoll)
	}
	if !ok {
		if len(e.pendingOrder) >= maxPendingPolls {
			oldest := e.pendingOrder[0]
			logging.Log.WithField("poll_id", oldest).Debugf("evicting %d buffered votes", len(e.pending[oldest]))
			e.dropPending(oldest)
		}
		e.pendingOrder = append(e.pendingOrder, id)
	}
	e.pending[id] = append(queued, v)
	return nil
}

func (e *Engine) dropPending(id string) []pendingVote {
	queued, ok := e.pending[id]
	if !ok {
		return nil
	}
	delete(e.pending, id)
	e.pendingOrder = slices.DeleteFunc(e.pendingOrder, func(p string) bool { return p == id })
	return queued
}

// Pending reports how many undefined polls have buffered votes.
func (e *Engine) Pending() int { return len(e.pending) }

// Latest returns the most recently defined poll.
func (e *Engine) Latest() (*Poll, bool) {
	var latest *Poll
	for _, p := range e.polls {
		if latest == nil || p.Seq > latest.Seq {
			latest = p
		}
	}
	return latest, latest != nil
}

// Finalize scores the poll with the given id, or the most recently defined
// poll when id is empty. The ledger and leaderboard are committed before the
// poll is marked finalized; on a storage error nothing changes.
func (e *Engine) Finalize(ctx context.Context, id string) (*Poll, []db.ResultRow, error) {
	var p *Poll
	if id == "" {
		p, _ = e.Latest()
	} else {
		p = e.polls[id]
	}
	if p == nil {
		return nil, nil, ErrNoPoll
	}
	if p.Finalized {
		return p, nil, fmt.Errorf("poll %s: %w", p.ID, ErrPollFinalized)
	}

	batch := p.Batch
	next := e.board.Clone()
	rows := make([]db.ResultRow, 0, len(p.Options))
	for i, option := range p.Options {
		voters := append([]string(nil), p.Votes[i]...)
		correct := i == p.CorrectIndex
		rows = append(rows, db.ResultRow{
			Batch:    batch,
			Question: p.Question,
			Option:   option,
			Voters:   voters,
			Correct:  correct,
		})
		if correct {
			for _, v := range voters {
				next[v]++
			}
		}
	}

	ledger, err := e.store.LoadResultRows(ctx)
	if err != nil {
		return p, nil, &PersistenceError{Op: "load results", Err: err}
	}
	// A store that is not transactional may have kept the rows of an
	// earlier failed attempt; those are not appended twice.
	if slices.ContainsFunc(ledger, func(r db.ResultRow) bool { return r.Batch == batch }) {
		logging.Log.WithField("poll_id", p.ID).Warn("results already in the ledger, saving the leaderboard only")
	} else {
		ledger = append(ledger, rows...)
	}
	if err := e.store.Commit(ctx, next, ledger); err != nil {
		return p, nil, &PersistenceError{Op: "save results", Err: err}
	}

	e.board = next
	p.Finalized = true
	return p, rows, nil
}

// Reset wipes the durable leaderboard and ledger, then every tracked poll.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Commit(ctx, db.Leaderboard{}, nil); err != nil {
		return &PersistenceError{Op: "reset", Err: err}
	}
	e.board = db.Leaderboard{}
	e.polls = make(map[string]*Poll)
	e.pending = make(map[string][]pendingVote)
	e.pendingOrder = nil
	return nil
}

// Rebuild recomputes the leaderboard from the ledger and persists it.
func (e *Engine) Rebuild(ctx context.Context) (db.Leaderboard, error) {
	ledger, err := e.store.LoadResultRows(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load results", Err: err}
	}
	board := LeaderboardFromLedger(ledger)
	if err := e.store.SaveLeaderboard(ctx, board); err != nil {
		return nil, &PersistenceError{Op: "save leaderboard", Err: err}
	}
	e.board = board
	return board.Clone(), nil
}

// Stats reports how many polls are tracked and how many are still open.
func (e *Engine) Stats() (tracked, open int) {
	for _, p := range e.polls {
		tracked++
		if !p.Finalized {
			open++
		}
	}
	return tracked, open
}

// LeaderboardFromLedger counts, per participant, the correct rows they appear in.
func LeaderboardFromLedger(rows []db.ResultRow) db.Leaderboard {
	board := db.Leaderboard{}
	for _, r := range rows {
		if !r.Correct {
			continue
		}
		for _, v := range r.Voters {
			board[v]++
		}
	}
	return board
}

func (p *Poll) hasVoted(participant string) bool {
	for _, voters := range p.Votes {
		if slices.Contains(voters, participant) {
			return true
		}
	}
	return false
}

func (p *Poll) removeEverywhere(participant string) {
	for i, voters := range p.Votes {
		p.Votes[i] = slices.DeleteFunc(voters, func(v string) bool { return v == participant })
	}
}
