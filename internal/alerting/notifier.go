package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification 封装告警上下文。
type Notification struct {
	PredictionID   string
	Symbol         string
	LastDataDate   time.Time
	TargetDate     time.Time
	LastPrice      decimal.Decimal
	PredictedPrice decimal.Decimal
	Lower          decimal.Decimal
	Upper          decimal.Decimal
	TrendPct       decimal.Decimal
	ThresholdPct   decimal.Decimal
	Direction      string
	Degraded       []string
	AdditionalMsg  string
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

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
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

	n.logger.Info().Str("symbol", note.Symbol).
		Str("prediction_id", note.PredictionID).
		Str("direction", note.Direction).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier writes notifications to the log when no channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the rendered message.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().Str("symbol", note.Symbol).
		Str("prediction_id", note.PredictionID).
		Str("message", RenderMessage(note)).
		Msg("forecast notification")
	return nil
}

// RenderMessage formats the notification as plain text.
func RenderMessage(note Notification) string {
	const layout = "2006-01-02"

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s Forecast]\n", note.Symbol))
	builder.WriteString(fmt.Sprintf("Data until: %s\n", note.LastDataDate.Format(layout)))
	builder.WriteString(fmt.Sprintf("Target: %s\n", note.TargetDate.Format(layout)))
	builder.WriteString(fmt.Sprintf("Last close: %s\n", rupiah(note.LastPrice)))
	builder.WriteString(fmt.Sprintf("Predicted: %s\n", rupiah(note.PredictedPrice)))
	builder.WriteString(fmt.Sprintf("Range: %s - %s\n", rupiah(note.Lower), rupiah(note.Upper)))
	builder.WriteString(fmt.Sprintf("Trend: %s%% %s (threshold %s%%)\n",
		note.TrendPct.StringFixed(2), note.Direction, note.ThresholdPct.StringFixed(2)))
	if len(note.Degraded) > 0 {
		builder.WriteString(fmt.Sprintf("Degraded: %s\n", strings.Join(note.Degraded, ",")))
	}
	if note.PredictionID != "" {
		builder.WriteString(fmt.Sprintf("ID: %s\n", note.PredictionID))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

func rupiah(d decimal.Decimal) string {
	return "Rp " + humanize.Comma(d.Round(0).IntPart())
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
