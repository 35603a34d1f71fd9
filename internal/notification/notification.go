// Package notification fans emitted signals and lifecycle events out
// to the configured channels. Send failures are logged and never block
// or fail the engine.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"binance-signal-engine/internal/strategy"
)

// Notifier delivers one message to one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, subject, message string) error
}

// Compile-time interface checks
var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*DiscordNotifier)(nil)
)

// Manager fans out to every registered notifier.
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewManager(logger zerolog.Logger, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// Register adds a notifier.
func (m *Manager) Register(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to every channel; individual failures only log.
func (m *Manager) Send(ctx context.Context, subject, message string) {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, subject, message); err != nil {
			m.logger.Warn().Str("notifier", n.Name()).Err(err).Msg("notification failed")
		}
	}
}

// SendSignal formats and delivers an emitted signal.
func (m *Manager) SendSignal(ctx context.Context, sig *strategy.Signal) {
	m.Send(ctx, fmt.Sprintf("%s %s signal", sig.Symbol, sig.Side), FormatSignal(sig))
}

// FormatSignal renders the trade card sent to chat channels.
func FormatSignal(sig *strategy.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n", sig.Symbol, sig.Side, sig.Strategy)
	fmt.Fprintf(&b, "Entry: %.6f\n", sig.Entry)
	fmt.Fprintf(&b, "Stop: %.6f\n", sig.StopLoss)
	fmt.Fprintf(&b, "Targets: %.6f / %.6f / %.6f\n", sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3)
	if sig.PositionSize > 0 {
		fmt.Fprintf(&b, "Size: %.4f @ %.1fx (risking %.2f USDT)\n", sig.PositionSize, sig.Leverage, sig.RiskAmount)
	}
	fmt.Fprintf(&b, "Confidence: %s (%d/5)\n", strings.Repeat("*", sig.Confidence), sig.Confidence)
	if sig.Regime != "" {
		fmt.Fprintf(&b, "Regime: %s\n", sig.Regime)
	}
	if len(sig.Reasons) > 0 {
		fmt.Fprintf(&b, "Confirmations: %s\n", strings.Join(sig.Reasons, ", "))
	}
	fmt.Fprintf(&b, "RR: %.2f", sig.RiskReward())
	return b.String()
}

// ==================== TELEGRAM ====================

// TelegramNotifier posts through the Bot API.
type TelegramNotifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, subject, message string) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	payload := url.Values{}
	payload.Set("chat_id", t.chatID)
	payload.Set("text", subject+"\n\n"+message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(payload.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned %d", resp.StatusCode)
	}
	return nil
}

// ==================== DISCORD ====================

// DiscordNotifier posts through a channel webhook.
type DiscordNotifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) Send(ctx context.Context, subject, message string) error {
	body, err := json.Marshal(map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", subject, message),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord returned %d", resp.StatusCode)
	}
	return nil
}
