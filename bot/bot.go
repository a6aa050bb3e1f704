package bot

import (
	"context"
	"slices"

	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/airylvat/quizpoll-bot/quiz"

	"github.com/bwmarrin/discordgo"
)

// EventSink receives the events the bot translates from Discord.
type EventSink interface {
	Submit(ctx context.Context, ev quiz.Event) error
}

// gatewayIntents adds the poll vote events and message text to the default
// set. Message content is privileged and must be enabled for the application.
const gatewayIntents = discordgo.IntentsAllWithoutPrivileged |
	discordgo.IntentGuildMessagePolls |
	discordgo.IntentDirectMessagePolls |
	discordgo.IntentMessageContent

type Bot struct {
	Session         *discordgo.Session
	AllowedChannels []string
	Prefix          string
	PollHours       int
	sink            EventSink
}

func NewBot(cfg *Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = gatewayIntents

	bot := &Bot{
		Session:         session,
		AllowedChannels: cfg.AllowedChannels,
		Prefix:          cfg.Prefix,
		PollHours:       cfg.PollDurationHours,
	}

	session.AddHandler(bot.handleMessage)
	session.AddHandler(bot.handlePollVoteAdd)
	session.AddHandler(bot.handlePollVoteRemove)
	return bot, nil
}

// Attach sets where translated events go. Call it before Start.
func (b *Bot) Attach(sink EventSink) {
	b.sink = sink
}

func (b *Bot) Start() error {
	if err := b.Session.Open(); err != nil {
		return err
	}
	logging.Log.Info("Bot is running...")
	logging.Log.Infof("Logged in as: %s", b.Session.State.User.Username)
	logging.Log.Infof("Allowed channels: %v", b.AllowedChannels)
	return nil
}

func (b *Bot) Close() error {
	return b.Session.Close()
}

// channelAllowed reports whether the bot listens in channelID. No list means
// every channel.
func (b *Bot) channelAllowed(channelID string) bool {
	return len(b.AllowedChannels) == 0 || slices.Contains(b.AllowedChannels, channelID)
}

func (b *Bot) emit(ev quiz.Event) {
	if b.sink == nil {
		logging.Log.Warnf("dropping %T, no event sink attached", ev)
		return
	}
	if err := b.sink.Submit(context.Background(), ev); err != nil {
		logging.Log.Errorf("failed to submit %T: %v", ev, err)
	}
}
