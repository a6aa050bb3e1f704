package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/airylvat/quizpoll-bot/db"
	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PollRequest asks the transport to broadcast a quiz poll.
type PollRequest struct {
	Chat         string
	Question     string
	Options      []string
	CorrectIndex int
	Anonymous    bool
	Kind         string
}

// Transport delivers messages and polls. After CreatePoll succeeds the
// transport is expected to submit a PollDefined event for the new poll.
type Transport interface {
	SendMessage(ctx context.Context, chat, text string) error
	CreatePoll(ctx context.Context, req PollRequest) (string, error)
}

type Config struct {
	// PollChat receives broadcast polls. Empty means the operator's chat.
	PollChat         string
	Prefix           string
	Policy           VotePolicy
	DraftIdleTimeout time.Duration
	QueueSize        int
	// Limits are the transport's caps on a poll, enforced while authoring.
	Limits Limits
}

type envelope struct {
	id string
	ev Event
}

// Service owns all quiz state: drafts, tracked polls and the leaderboard.
// Events are handled one at a time, either directly through Handle or by the
// Run loop draining Submit.
type Service struct {
	cfg       Config
	transport Transport
	sessions  *Sessions
	engine    *Engine
	events    chan envelope
	pick      func(n int) int
}

func NewService(cfg Config, transport Transport, store db.Store) *Service {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	sessions := NewSessions(time.Now)
	sessions.SetLimits(cfg.Limits)
	return &Service{
		cfg:       cfg,
		transport: transport,
		sessions:  sessions,
		engine:    NewEngine(store, cfg.Policy),
		events:    make(chan envelope, cfg.QueueSize),
		pick:      rand.Intn,
	}
}

// Start loads persisted state. Call it before Run or Handle.
func (s *Service) Start(ctx context.Context) error {
	if err := s.engine.Load(ctx); err != nil {
		return err
	}
	logging.Log.Infof("Quiz service ready, %d participants on the leaderboard, vote policy %s",
		len(s.engine.board), s.engine.Policy())
	return nil
}

// Submit queues an event for the Run loop. Safe for concurrent use.
func (s *Service) Submit(ctx context.Context, ev Event) error {
	select {
	case s.events <- envelope{id: uuid.NewString(), ev: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run handles queued events until ctx is done. Handler failures are logged
// and never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	var sweep <-chan time.Time
	if s.cfg.DraftIdleTimeout > 0 {
		ticker := time.NewTicker(sweepInterval(s.cfg.DraftIdleTimeout))
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-s.events:
			_ = s.handle(ctx, env.id, env.ev)
		case <-sweep:
			s.expireDrafts(ctx)
		}
	}
}

func sweepInterval(timeout time.Duration) time.Duration {
	return max(timeout/4, time.Second)
}

// Handle processes a single event synchronously.
func (s *Service) Handle(ctx context.Context, ev Event) error {
	return s.handle(ctx, uuid.NewString(), ev)
}

func (s *Service) handle(ctx context.Context, id string, ev Event) error {
	log := logging.Log.WithFields(logrus.Fields{"event_id": id, "kind": ev.kind()})

	var err error
	switch e := ev.(type) {
	case Command:
		log = log.WithFields(logrus.Fields{"operator": e.Operator, "command": e.Name})
		err = s.onCommand(ctx, e)
	case FreeText:
		log = log.WithField("operator", e.Operator)
		err = s.onFreeText(ctx, e)
	case PollDefined:
		log = log.WithField("poll_id", e.PollID)
		err = s.engine.OnPollDefined(e.PollID, e.Question, e.Options, e.CorrectIndex)
	case VoteCast:
		log = log.WithField("poll_id", e.PollID)
		err = s.engine.OnVote(e.PollID, Identity(e.Account), e.OptionIndex)
	case VoteRetracted:
		log = log.WithField("poll_id", e.PollID)
		err = s.engine.OnRetract(e.PollID, Identity(e.Account), e.OptionIndex)
	default:
		err = fmt.Errorf("unhandled event %T", ev)
	}

	var pe *PersistenceError
	var ve *ValidationError
	switch {
	case err == nil:
		log.Debug("event handled")
	case errors.As(err, &pe):
		log.Errorf("event failed: %v", err)
	case errors.As(err, &ve), errors.Is(err, ErrNoPoll), errors.Is(err, ErrNoData), errors.Is(err, ErrPollFinalized):
		log.Infof("event rejected: %v", err)
	default:
		log.Warnf("event failed: %v", err)
	}
	return err
}

func (s *Service) reply(ctx context.Context, chat, text string) {
	if err := s.transport.SendMessage(ctx, chat, text); err != nil {
		logging.Log.WithField("chat", chat).Errorf("failed to send message: %v", err)
	}
}

func (s *Service) onCommand(ctx context.Context, c Command) error {
	switch c.Name {
	case "start", "help":
		s.reply(ctx, c.Chat, helpText(s.cfg.Prefix))
		return nil
	case "create_quiz":
		s.sessions.Begin(c.Operator, c.Chat)
		s.reply(ctx, c.Chat, "Send the question for the quiz:")
		return nil
	case "done":
		return s.onDone(ctx, c)
	case "cancel":
		if !s.sessions.Cancel(c.Operator) {
			s.reply(ctx, c.Chat, "There is no quiz being created.")
			return nil
		}
		s.reply(ctx, c.Chat, "Quiz creation cancelled.")
		return nil
	case "process":
		return s.onProcess(ctx, c)
	case "winners":
		return s.onWinners(ctx, c)
	case "reset":
		return s.onReset(ctx, c)
	case "rebuild":
		return s.onRebuild(ctx, c)
	case "status":
		s.onStatus(ctx, c)
		return nil
	}
	// An operator mid-draft may write a question or option that merely
	// looks like a command.
	if s.sessions.State(c.Operator) != Idle {
		return s.onFreeText(ctx, FreeText{Operator: c.Operator, Chat: c.Chat, Text: c.Text})
	}
	logging.Log.Debugf("ignoring unknown command %q", c.Name)
	return nil
}

func (s *Service) onFreeText(ctx context.Context, m FreeText) error {
	if s.sessions.State(m.Operator) == Idle {
		return nil
	}

	step, err := s.sessions.Accept(m.Operator, m.Text)
	if err != nil {
		s.replyValidation(ctx, m.Chat, err)
		return err
	}

	switch step.Kind {
	case QuestionSet:
		s.reply(ctx, m.Chat, fmt.Sprintf(
			"Send the answer options one at a time. Send %sdone when finished or %scancel if you made a mistake:",
			s.cfg.Prefix, s.cfg.Prefix))
	case OptionAdded:
		s.reply(ctx, m.Chat, fmt.Sprintf(
			"Option %d added. Keep going, send %sdone to finish or %scancel if you made a mistake!",
			step.Options, s.cfg.Prefix, s.cfg.Prefix))
	case Completed:
		return s.broadcast(ctx, m, step.Quiz)
	}
	return nil
}

func (s *Service) onDone(ctx context.Context, c Command) error {
	if s.sessions.State(c.Operator) == Idle {
		s.reply(ctx, c.Chat, "There is no quiz being created.")
		return nil
	}
	if _, err := s.sessions.Done(c.Operator); err != nil {
		s.replyValidation(ctx, c.Chat, err)
		return err
	}
	s.reply(ctx, c.Chat, "Send the number of the correct answer (starting from 1):")
	return nil
}

// broadcast sends the finished quiz. The draft stays in place if the
// transport fails so the operator can retry with the same number.
func (s *Service) broadcast(ctx context.Context, m FreeText, q Quiz) error {
	chat := s.cfg.PollChat
	if chat == "" {
		chat = m.Chat
	}
	pollID, err := s.transport.CreatePoll(ctx, PollRequest{
		Chat:         chat,
		Question:     q.Question,
		Options:      q.Options,
		CorrectIndex: q.CorrectIndex,
		Anonymous:    false,
		Kind:         "quiz",
	})
	if err != nil {
		s.reply(ctx, m.Chat, "Could not send the quiz, send the number again to retry.")
		return fmt.Errorf("create poll: %w", err)
	}

	s.sessions.Finish(m.Operator)
	s.reply(ctx, m.Chat, fmt.Sprintf("Quiz created and sent to the channel!\nID: %s", pollID))
	logging.Log.WithFields(logrus.Fields{"operator": m.Operator, "poll_id": pollID}).Info("quiz broadcast")
	return nil
}

func (s *Service) onProcess(ctx context.Context, c Command) error {
	p, rows, err := s.engine.Finalize(ctx, c.Args)
	switch {
	case errors.Is(err, ErrNoPoll):
		s.reply(ctx, c.Chat, "No quiz data!")
		return err
	case errors.Is(err, ErrPollFinalized):
		s.reply(ctx, c.Chat, "The results of this quiz were already processed.")
		return err
	case err != nil:
		s.reply(ctx, c.Chat, fmt.Sprintf("Could not save the quiz results: %v", err))
		return err
	}

	s.reply(ctx, c.Chat, resultsReport(p.Question, rows))
	s.reply(ctx, c.Chat, "Quiz results processed and saved!")
	return nil
}

func (s *Service) onWinners(ctx context.Context, c Command) error {
	standings, err := s.Winners()
	if err != nil {
		s.reply(ctx, c.Chat, "No quiz data!")
		return err
	}
	s.reply(ctx, c.Chat, leaderboardReport(standings.Entries))
	s.reply(ctx, c.Chat, winnerReport(standings))
	return nil
}

// Winners reports the in-memory standings.
func (s *Service) Winners() (Standings, error) {
	return TopWinners(s.engine.Leaderboard(), s.pick)
}

func (s *Service) onReset(ctx context.Context, c Command) error {
	if err := s.engine.Reset(ctx); err != nil {
		s.reply(ctx, c.Chat, fmt.Sprintf("Could not reset the results: %v", err))
		return err
	}
	s.sessions.Clear()
	s.reply(ctx, c.Chat, "All results have been reset. A new round of quizzes has started!")
	return nil
}

func (s *Service) onRebuild(ctx context.Context, c Command) error {
	board, err := s.engine.Rebuild(ctx)
	if err != nil {
		s.reply(ctx, c.Chat, fmt.Sprintf("Could not rebuild the leaderboard: %v", err))
		return err
	}
	s.reply(ctx, c.Chat, fmt.Sprintf("Leaderboard rebuilt from the results log: %d participants.", len(board)))
	return nil
}

func (s *Service) onStatus(ctx context.Context, c Command) {
	tracked, open := s.engine.Stats()
	msg := fmt.Sprintf("Your quiz: %s\nTracked polls: %d (%d not processed)\nVote policy: %s",
		s.sessions.State(c.Operator), tracked, open, s.engine.Policy())
	if d, ok := s.sessions.Draft(c.Operator); ok && d.Question != "" {
		msg += fmt.Sprintf("\nQuestion: %s\nOptions so far: %d", d.Question, len(d.Options))
	}
	s.reply(ctx, c.Chat, msg)
}

func (s *Service) replyValidation(ctx context.Context, chat string, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		s.reply(ctx, chat, ve.Msg+"!")
		return
	}
	s.reply(ctx, chat, err.Error())
}

func (s *Service) expireDrafts(ctx context.Context) {
	for _, d := range s.sessions.Expire(s.cfg.DraftIdleTimeout) {
		logging.Log.WithField("operator", d.Operator).Info("quiz draft expired")
		s.reply(ctx, d.Chat, fmt.Sprintf("Your quiz draft expired after %s of inactivity.", s.cfg.DraftIdleTimeout))
	}
}
