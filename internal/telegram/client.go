// Package telegram provides a client for sending notifications via Telegram Bot API.
// It formats Pareto reports into MarkdownV2 messages and handles delivery with
// retry logic. Service health messages (first failure, recovery) go through the
// same path.
package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/oeewatch/internal/models"
)

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	return newClientWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, maxRetries, retryDelayBase)
}

func newClientWithEndpoint(botToken, chatID, endpoint string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(botToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
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

// maxMessageLength keeps messages below Telegram's 4096 character limit,
// leaving room for the part counter.
const maxMessageLength = 4000

// Send sends a notification summarizing the given Pareto reports, split into
// as many messages as the length limit requires.
func (c *Client) Send(reports []*models.ParetoReport) error {
	if len(reports) == 0 {
		return nil
	}
	messages := splitMessage(formatMessage(reports), maxMessageLength)
	for i, message := range messages {
		if len(messages) > 1 {
			message += fmt.Sprintf("\n_%d/%d_", i+1, len(messages))
		}
		if err := c.send(message); err != nil {
			return fmt.Errorf("part %d of %d: %w", i+1, len(messages), err)
		}
	}
	return nil
}

// SendError notifies that a monitoring cycle failed
func (c *Client) SendError(err error) error {
	message := "⚠️ *Monitoring cycle failed*\n\n" + escapeMarkdownV2(err.Error())
	return c.send(message)
}

// SendRecovery notifies that monitoring recovered after consecutive failures
func (c *Client) SendRecovery(failures int) error {
	message := fmt.Sprintf("✅ *Monitoring recovered* after %d failed %s",
		failures, pluralize(failures, "cycle", "cycles"))
	return c.send(message)
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	// Send with retry
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatMessage formats Pareto reports into a Telegram message
func formatMessage(reports []*models.ParetoReport) string {
	var b strings.Builder
	b.WriteString("📊 *Top Errors*\n\n")

	// Show report time once at the top
	dateStr := escapeMarkdownV2(reports[0].CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "📅 Updated: %s\n\n", dateStr)

	for _, report := range reports {
		fmt.Fprintf(&b, "🏭 *%s* \\(%s, by %s\\)\n",
			escapeMarkdownV2(report.Scope),
			escapeMarkdownV2(report.Period),
			escapeMarkdownV2(string(report.Metric)))

		for i, entry := range report.Entries {
			fmt.Fprintf(&b, "%d\\. `%s` %s · *%s*\n",
				i+1,
				escapeCode(entry.Label),
				escapeMarkdownV2(formatValue(entry.Value, report.Metric)),
				escapeMarkdownV2(fmt.Sprintf("%.1f%%", entry.CumulativePercent)))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// splitMessage cuts text into chunks of at most limit characters. Cuts fall
// between report sections when possible, and between lines otherwise.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if chunk := strings.TrimRight(current.String(), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}
	appendPiece := func(piece string) {
		if utf8.RuneCountInString(current.String())+utf8.RuneCountInString(piece) > limit {
			flush()
		}
		current.WriteString(piece)
	}

	for _, section := range strings.SplitAfter(text, "\n\n") {
		if utf8.RuneCountInString(section) <= limit {
			appendPiece(section)
			continue
		}
		for _, line := range strings.SplitAfter(section, "\n") {
			for utf8.RuneCountInString(line) > limit {
				runes := []rune(line)
				appendPiece(string(runes[:limit]))
				line = string(runes[limit:])
			}
			appendPiece(line)
		}
	}
	flush()
	return chunks
}

// formatValue renders an entry value as a count or as recovery time.
func formatValue(value float64, metric models.Metric) string {
	if metric == models.MetricRecovery {
		return formatDuration(time.Duration(value * float64(time.Hour)))
	}
	if value == math.Trunc(value) {
		return fmt.Sprintf("%.0f×", value)
	}
	return fmt.Sprintf("%.2f×", value)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! \
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes text placed inside an inline code span.
func escapeCode(text string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(text)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	switch {
	case hours > 0 && mins > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case mins > 0:
		return fmt.Sprintf("%dm", mins)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
