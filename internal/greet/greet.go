// Package greet handles first contact: the /start funnel, auto-approval of
// channel join requests and group welcome messages.
package greet

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linearity/postbot/core/logger"
	"github.com/linearity/postbot/core/telegram/keyboard"
	"github.com/linearity/postbot/internal/delivery"

	tele "gopkg.in/telebot.v4"
)

const (
	joinWindow    = 5 * time.Second
	joinMaxEvents = 5
	maxGreetText  = 4096
)

// BotAPI is the slice of the bot client the greeter needs.
type BotAPI interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
	CreateInviteLink(chat tele.Recipient, link *tele.ChatInviteLink) (*tele.ChatInviteLink, error)
	Commands(opts ...any) ([]tele.Command, error)
	ApproveJoinRequest(chat tele.Recipient, user *tele.User) error
	DeclineJoinRequest(chat tele.Recipient, user *tele.User) error
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// Greeter welcomes users in private chat and manages the target channel's
// join requests.
type Greeter struct {
	api     BotAPI
	target  int64
	dataDir string
	seen    *SeenSet
	limiter *limiter
}

// New builds a Greeter around the target chat and the data directory that
// holds the seen set and the welcome config.
func New(api BotAPI, targetChatID int64, dataDir string) *Greeter {
	return &Greeter{
		api:     api,
		target:  targetChatID,
		dataDir: dataDir,
		seen:    LoadSeen(dataDir),
		limiter: newLimiter(joinWindow, joinMaxEvents),
	}
}

// Start greets the user. First-time users get a membership-aware funnel
// toward the target channel, returning users get the configured welcome.
func (g *Greeter) Start(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if !g.seen.Has(sender.ID) && g.target != 0 {
		defer g.markSeen(sender.ID)
		if g.isMember(sender) {
			return g.sendCommandList(c)
		}
		return g.sendChannelInvite(c, sender)
	}

	if cfg, ok := ReadStartConfig(g.dataDir); ok {
		text := cfg.Message
		if strings.TrimSpace(text) == "" {
			text = fmt.Sprintf("Ciao %s!", sender.FirstName)
		}
		if markup := delivery.ButtonsMarkup(cfg.Buttons); markup != nil {
			return c.Send(sanitizeText(text, maxGreetText), markup)
		}
		return c.Send(sanitizeText(text, maxGreetText))
	}

	// No curated welcome: offer a join-request link to the target channel.
	text := fmt.Sprintf("Ciao %s! Premi il pulsante per richiedere l'iscrizione.", sender.FirstName)
	if link := g.inviteLink(sender.ID, true); link != "" {
		markup := &tele.ReplyMarkup{}
		markup.Inline(markup.Row(markup.URL("Richiedi iscrizione", link)))
		return c.Send(sanitizeText(text, maxGreetText), markup)
	}
	return c.Send(sanitizeText(text, maxGreetText))
}

// JoinRequest auto-approves join requests for the target channel, declining
// users that spam requests inside the rate window.
func (g *Greeter) JoinRequest(c tele.Context) error {
	req := c.Update().ChatJoinRequest
	if req == nil || req.Sender == nil || req.Chat == nil {
		return nil
	}

	if !g.limiter.Allow(fmt.Sprintf("join_%d", req.Sender.ID)) {
		if err := g.api.DeclineJoinRequest(req.Chat, req.Sender); err != nil {
			logger.Warn(logger.Background(), "greet", "join.decline_failed",
				slog.Int64("user_id", req.Sender.ID),
				slog.String("err", err.Error()),
			)
		}
		return nil
	}

	if err := g.api.ApproveJoinRequest(req.Chat, req.Sender); err != nil {
		logger.Error(logger.Background(), "greet", "join.approve_failed",
			slog.Int64("user_id", req.Sender.ID),
			slog.Int64("chat_id", req.Chat.ID),
			slog.String("err", err.Error()),
		)
		return nil
	}

	welcome := fmt.Sprintf("Benvenuto %s!", req.Sender.FirstName)
	if _, err := g.api.Send(req.Chat, sanitizeText(welcome, maxGreetText)); err != nil {
		logger.Warn(logger.Background(), "greet", "join.welcome_failed",
			slog.Int64("chat_id", req.Chat.ID),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

// UserJoined welcomes every human member added to a group chat.
func (g *Greeter) UserJoined(c tele.Context) error {
	msg := c.Message()
	if msg == nil {
		return nil
	}
	joined := msg.UsersJoined
	if len(joined) == 0 && msg.UserJoined != nil {
		joined = []tele.User{*msg.UserJoined}
	}
	for _, user := range joined {
		if user.IsBot {
			continue
		}
		text := fmt.Sprintf("Benvenuto %s! Scrivi /help per iniziare.", user.FirstName)
		if err := c.Send(sanitizeText(text, maxGreetText)); err != nil {
			logger.Warn(logger.Background(), "greet", "welcome.send_failed",
				slog.Int64("user_id", user.ID),
				slog.String("err", err.Error()),
			)
		}
	}
	return nil
}

func (g *Greeter) isMember(user *tele.User) bool {
	member, err := g.api.ChatMemberOf(tele.ChatID(g.target), user)
	if err != nil {
		logger.Warn(logger.Background(), "greet", "membership.probe_failed",
			slog.Int64("user_id", user.ID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return member.Role != tele.Left && member.Role != tele.Kicked
}

func (g *Greeter) sendCommandList(c tele.Context) error {
	cmds, err := g.api.Commands()
	if err != nil {
		logger.Warn(logger.Background(), "greet", "commands.list_failed",
			slog.String("err", err.Error()),
		)
	}

	var b strings.Builder
	b.WriteString("Benvenuto! Ecco i comandi disponibili:\n\n")
	if len(cmds) == 0 {
		b.WriteString("/start - Avvia\n")
	}
	for _, cmd := range cmds {
		fmt.Fprintf(&b, "/%s - %s\n", cmd.Text, cmd.Description)
	}
	b.WriteString("\nPuoi rivedere la lista in qualsiasi momento con /help.")

	return c.Send(sanitizeText(b.String(), maxGreetText), keyboard.ReplyButtons([]string{"/help"}))
}

func (g *Greeter) sendChannelInvite(c tele.Context, sender *tele.User) error {
	welcome := fmt.Sprintf("Ciao %s, benvenuto!", sender.FirstName)
	if cfg, ok := ReadStartConfig(g.dataDir); ok && strings.TrimSpace(cfg.Message) != "" {
		welcome = cfg.Message
	}

	if link := g.inviteLink(sender.ID, false); link != "" {
		markup := &tele.ReplyMarkup{}
		markup.Inline(markup.Row(markup.URL("AGGIUNGIMI AL CANALE", link)))
		return c.Send(sanitizeText(welcome, maxGreetText), markup)
	}
	return c.Send(sanitizeText(welcome, maxGreetText))
}

func (g *Greeter) inviteLink(userID int64, joinRequest bool) string {
	link, err := g.api.CreateInviteLink(tele.ChatID(g.target), &tele.ChatInviteLink{
		Name:        fmt.Sprintf("invite_%d_%d", userID, time.Now().Unix()),
		JoinRequest: joinRequest,
	})
	if err != nil {
		logger.Warn(logger.Background(), "greet", "invite.create_failed",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return ""
	}
	return link.InviteLink
}

func (g *Greeter) markSeen(userID int64) {
	if err := g.seen.Mark(userID); err != nil {
		logger.Warn(logger.Background(), "greet", "seen.persist_failed",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

// sanitizeText drops control characters except newline and tab and caps the
// text length in runes.
func sanitizeText(text string, max int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, text)
	runes := []rune(cleaned)
	if len(runes) > max {
		return string(runes[:max])
	}
	return cleaned
}
