package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/airylvat/quizpoll-bot/quiz"

	"github.com/bwmarrin/discordgo"
)

const (
	// Discord rejects messages over 2000 characters; leave headroom.
	messageLimit = 1900
	maxAnswers   = 10
)

// PollLimits are Discord's caps on a poll's question and answers.
var PollLimits = quiz.Limits{
	MaxOptions:     maxAnswers,
	MaxOptionLen:   55,
	MaxQuestionLen: 300,
}

var ErrTooManyAnswers = errors.New("discord polls allow at most 10 answers")

// SendMessage posts text to a channel, split across messages when long.
func (b *Bot) SendMessage(ctx context.Context, chat, text string) error {
	for _, chunk := range splitMessage(text, messageLimit) {
		if _, err := b.Session.ChannelMessageSend(chat, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// CreatePoll posts a Discord poll and, once it exists, reports it to the
// event sink as PollDefined. Discord polls carry no correct answer, so the
// index travels with the event instead.
func (b *Bot) CreatePoll(ctx context.Context, req quiz.PollRequest) (string, error) {
	if len(req.Options) > maxAnswers {
		return "", ErrTooManyAnswers
	}

	answers := make([]discordgo.PollAnswer, 0, len(req.Options))
	for _, opt := range req.Options {
		answers = append(answers, discordgo.PollAnswer{Media: &discordgo.PollMedia{Text: opt}})
	}

	msg, err := b.Session.ChannelMessageSendComplex(req.Chat, &discordgo.MessageSend{
		Poll: &discordgo.Poll{
			Question:         discordgo.PollMedia{Text: req.Question},
			Answers:          answers,
			AllowMultiselect: false,
			Duration:         b.PollHours,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send poll: %w", err)
	}
	logging.Log.Infof("Posted %s poll %s in %s", req.Kind, msg.ID, req.Chat)

	// The caller may be the event loop itself, so never block it here.
	go b.emit(quiz.PollDefined{
		PollID:       msg.ID,
		Question:     req.Question,
		Options:      append([]string(nil), req.Options...),
		CorrectIndex: req.CorrectIndex,
	})
	return msg.ID, nil
}

// splitMessage breaks text on line boundaries into chunks of at most limit
// bytes. A single line longer than limit is cut at the last rune boundary.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if b.Len() > 0 {
				chunks = append(chunks, b.String())
				b.Reset()
			}
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if b.Len()+len(line) > limit {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
