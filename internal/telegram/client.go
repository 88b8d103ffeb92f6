// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// topWeights caps how many miners a submission summary lists.
const topWeights = 10

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// Summary is the submission digest sent after each epoch.
type Summary struct {
	IterationID     string
	Outcome         string
	Campaigns       int
	CampaignsFailed int
	Beneficiary     string
	Weights         map[string]float64
	Duration        time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends an epoch failure notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Weight epoch failed*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Weight engine recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendSummary sends the post-epoch submission digest.
func (c *Client) SendSummary(s Summary) error {
	return c.sendMarkdownV2(formatSummary(s))
}

// formatSummary formats a submission digest into a MarkdownV2 message.
func formatSummary(s Summary) string {
	icon := "📤"
	if s.Outcome != "submitted" {
		icon = "⏭️"
	}
	message := fmt.Sprintf("%s *Weights %s*\n", icon, escapeMarkdownV2(s.Outcome))
	message += fmt.Sprintf("🆔 `%s`\n", escapeMarkdownV2(s.IterationID))
	message += fmt.Sprintf("📦 Campaigns: %d", s.Campaigns)
	if s.CampaignsFailed > 0 {
		message += fmt.Sprintf(" \\(%d failed\\)", s.CampaignsFailed)
	}
	message += "\n"
	message += fmt.Sprintf("⏱ Duration: %s\n", escapeMarkdownV2(s.Duration.Round(time.Millisecond).String()))

	if len(s.Weights) == 0 {
		return message
	}

	type entry struct {
		id string
		w  float64
	}
	entries := make([]entry, 0, len(s.Weights))
	for id, w := range s.Weights {
		if w > 0 {
			entries = append(entries, entry{id, w})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].w != entries[j].w {
			return entries[i].w > entries[j].w
		}
		return entries[i].id < entries[j].id
	})

	message += "\n*Top weights*\n"
	for i, e := range entries {
		if i >= topWeights {
			message += fmt.Sprintf("… and %d more\n", len(entries)-topWeights)
			break
		}
		label := escapeMarkdownV2(e.id)
		if e.id == s.Beneficiary {
			label += " 🔥"
		}
		message += fmt.Sprintf("%d\\. `%s` %s\n", i+1, label, escapeMarkdownV2(fmt.Sprintf("%.4f", e.w)))
	}
	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
