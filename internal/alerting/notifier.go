package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"apples-watch/internal/offers"
)

// Notification 封装告警上下文。
type Notification struct {
	RuleName      string
	Recipient     string
	Supplier      string
	Price         decimal.Decimal
	Threshold     decimal.Decimal
	TermMonths    *int
	SelectionType offers.SelectionType
	SnapshotTS    time.Time
	SourceURL     string
	AdditionalMsg string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。The rule's recipient is ignored; the chat is fixed.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderSubject(note) + "\n\n" + renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("rule", note.RuleName).
		Str("supplier", note.Supplier).
		Msg("告警已发送 (Telegram)")
	return nil
}

// MultiNotifier fans a notification out to every channel and joins their errors.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier drops nil entries. It returns nil when nothing is left.
func NewMultiNotifier(notifiers ...Notifier) Notifier {
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &MultiNotifier{notifiers: kept}
}

// Notify delivers to all channels even when one fails.
func (m *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func renderSubject(note Notification) string {
	return fmt.Sprintf("[Apples to Apples] %s: %s at $%s/kWh", note.RuleName, note.Supplier, note.Price.StringFixed(4))
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("Alert: %s\n", note.RuleName))
	builder.WriteString(fmt.Sprintf("Supplier: %s\n", note.Supplier))
	builder.WriteString(fmt.Sprintf("Price: $%s/kWh (threshold $%s/kWh)\n", note.Price.StringFixed(4), note.Threshold.StringFixed(4)))
	if note.TermMonths != nil {
		builder.WriteString(fmt.Sprintf("Term: %d months\n", *note.TermMonths))
	}
	builder.WriteString(fmt.Sprintf("Selection: %s\n", note.SelectionType))
	builder.WriteString(fmt.Sprintf("Snapshot: %s UTC\n", note.SnapshotTS.UTC().Format(time.RFC3339)))
	if note.SourceURL != "" {
		builder.WriteString(fmt.Sprintf("Source: %s\n", note.SourceURL))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*MultiNotifier)(nil)
)
