package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/prism/internal/notifier"
)

const defaultBaseURL = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ notifier.Notifier = (*Telegram)(nil)

// New creates a new Telegram notifier
func New(botToken, chatID string) (*Telegram, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram: bot_token is required")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram: chat_id is required")
	}
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Notify(ctx context.Context, e notifier.Event) error {
	return t.sendMessage(ctx, formatEvent(e))
}

func formatEvent(e notifier.Event) string {
	var sb strings.Builder

	if e.Failed() {
		fmt.Fprintf(&sb, "❌ *Backtest failed* - %s\n", e.Symbol)
		fmt.Fprintf(&sb, "Code: %s\n", e.ErrorCode)
		if e.Error != "" {
			fmt.Fprintf(&sb, "Reason: %s\n", e.Error)
		}
	} else {
		emoji := "📈"
		if e.TotalReturnPct < 0 {
			emoji = "📉"
		}
		fmt.Fprintf(&sb, "%s *Backtest complete* - %s\n", emoji, e.Symbol)
		if e.Program != "" {
			fmt.Fprintf(&sb, "🎯 Strategy: %s\n", e.Program)
		}
		fmt.Fprintf(&sb, "Return: %.2f%%\n", e.TotalReturnPct)
		fmt.Fprintf(&sb, "Sharpe: %.2f\n", e.SharpeRatio)
		fmt.Fprintf(&sb, "Max drawdown: %.2f%%\n", e.MaxDrawdownPct)
		fmt.Fprintf(&sb, "Round trips: %d\n", e.RoundTrips)
	}

	fmt.Fprintf(&sb, "⏰ %s", e.FinishedAt.Format("2006-01-02 15:04:05"))
	return sb.String()
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
