package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const telegramTextLimit = 4000

// botClient is the part of *tele.Bot the sender needs.
type botClient interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramSender delivers to "telegram:<chat_id>" addresses. It only sends;
// no updates are polled.
type TelegramSender struct {
	bot botClient
}

func NewTelegramSender(token string, timeout time.Duration) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Poller:  &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

func (s *TelegramSender) Send(ctx context.Context, address, subject, body string) error {
	scheme, target, err := SplitAddress(address)
	if err != nil {
		return err
	}
	if scheme != SchemeTelegram {
		return fmt.Errorf("%w: telegram cannot send to %q", ErrInvalidAddress, address)
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: chat id %q", ErrInvalidAddress, target)
	}

	text := body
	if subject = strings.TrimSpace(subject); subject != "" {
		text = subject + "\n\n" + body
	}
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that leave at least a third of the window filled.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
