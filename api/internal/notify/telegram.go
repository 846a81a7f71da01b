// Package notify delivers finished parent reports over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"parent-bridge/api/internal/report"
)

// MaxMessageLen keeps each message under Telegram's 4096-character limit.
const MaxMessageLen = 3900

var ErrNoChat = errors.New("no chat_id given and TELEGRAM_CHAT_ID is not set")

// Sender is the part of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot         Sender
	defaultChat int64
}

// New authenticates the bot token against Telegram.
func New(token string, defaultChat int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = false
	return NewWithSender(bot, defaultChat), nil
}

func NewWithSender(s Sender, defaultChat int64) *Telegram {
	return &Telegram{bot: s, defaultChat: defaultChat}
}

// SendReport renders p and sends it in as many messages as needed.
// chatID 0 selects the default chat.
func (t *Telegram) SendReport(ctx context.Context, chatID int64, p report.Payload) (int, error) {
	if chatID == 0 {
		chatID = t.defaultChat
	}
	if chatID == 0 {
		return 0, ErrNoChat
	}
	chunks := Chunks(Render(p), MaxMessageLen)
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, c)); err != nil {
			return i, fmt.Errorf("telegram send %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return len(chunks), nil
}

// Render formats a report as plain text.
func Render(p report.Payload) string {
	lang := p.Language
	if strings.TrimSpace(lang) == "" {
		lang = report.DefaultLanguage
	}
	m := p.Metadata
	var b strings.Builder
	fmt.Fprintf(&b, "📄 %s report for %s (grade %s)\n", title(m.DocumentType), m.ChildName, m.Grade)
	fmt.Fprintf(&b, "From %s to %s\n", m.TeacherName, m.ParentName)
	if s := strings.TrimSpace(m.DocumentPurpose); s != "" {
		b.WriteString("Purpose: " + s + "\n")
	}
	b.WriteString("\nEnglish:\n" + strings.TrimSpace(p.ReportInEnglish) + "\n")
	b.WriteString("\n" + lang + ":\n" + strings.TrimSpace(p.ReportInTarget) + "\n")
	if q := strings.TrimSpace(p.FollowUpQuestions); q != "" {
		b.WriteString("\nQuestions to ask:\n" + q + "\n")
	}
	return b.String()
}

func title(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Homework"
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// Chunks splits text on line boundaries into pieces of at most max runes.
// A single line longer than max is split mid-line.
func Chunks(text string, max int) []string {
	var out []string
	var cur []rune
	flush := func() {
		if s := strings.TrimRight(string(cur), "\n"); s != "" {
			out = append(out, s)
		}
		cur = cur[:0]
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		if len(cur)+len(r) > max {
			flush()
		}
		for len(r) > max {
			out = append(out, string(r[:max]))
			r = r[max:]
		}
		cur = append(cur, r...)
	}
	flush()
	return out
}
