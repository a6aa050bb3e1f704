package bot

import (
	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/airylvat/quizpoll-bot/quiz"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}

	ev, ok := b.toEvent(m.Message)
	if !ok {
		return
	}
	b.emit(ev)
}

// toEvent classifies a chat message as an operator command or free text.
func (b *Bot) toEvent(m *discordgo.Message) (quiz.Event, bool) {
	if m.Author == nil || !b.channelAllowed(m.ChannelID) {
		return nil, false
	}

	if name, args, ok := quiz.ParseCommand(b.Prefix, m.Content); ok {
		logging.Log.Debugf("Command %q from %s", name, m.Author.Username)
		return quiz.Command{Operator: m.Author.ID, Chat: m.ChannelID, Name: name, Args: args, Text: m.Content}, true
	}
	return quiz.FreeText{Operator: m.Author.ID, Chat: m.ChannelID, Text: m.Content}, true
}

func (b *Bot) handlePollVoteAdd(s *discordgo.Session, v *discordgo.MessagePollVoteAdd) {
	if !b.voteRelevant(s, v.ChannelID, v.UserID) {
		return
	}
	b.emit(quiz.VoteCast{
		PollID:      v.MessageID,
		Account:     lookupAccount(s, v.UserID),
		OptionIndex: v.AnswerID - 1,
	})
}

func (b *Bot) handlePollVoteRemove(s *discordgo.Session, v *discordgo.MessagePollVoteRemove) {
	if !b.voteRelevant(s, v.ChannelID, v.UserID) {
		return
	}
	b.emit(quiz.VoteRetracted{
		PollID:      v.MessageID,
		Account:     lookupAccount(s, v.UserID),
		OptionIndex: v.AnswerID - 1,
	})
}

// voteRelevant drops votes cast by the bot itself and votes on polls outside
// the channels the bot listens in.
func (b *Bot) voteRelevant(s *discordgo.Session, channelID, userID string) bool {
	if s.State != nil && s.State.User != nil && userID == s.State.User.ID {
		return false
	}
	return b.channelAllowed(channelID)
}

// lookupAccount fetches the voter's handle. Without it the identity falls
// back to the account id.
func lookupAccount(s *discordgo.Session, userID string) quiz.Account {
	user, err := s.User(userID)
	if err != nil {
		logging.Log.Warnf("Error fetching user %s: %v", userID, err)
		return quiz.Account{ID: userID}
	}
	return accountOf(user)
}

func accountOf(u *discordgo.User) quiz.Account {
	return quiz.Account{ID: u.ID, Username: u.Username}
}
