package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const maxBackoff = 30 * time.Second

// TelegramNotifier delivers keeper reports to one chat through the Telegram
// Bot API and accepts commands from that chat only.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
	Log      *zap.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, log *zap.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  "https://api.telegram.org",
		Client:   &http.Client{Timeout: 40 * time.Second, Transport: transport},
		Log:      log,
	}
}

// Enabled reports whether credentials are configured.
func (t *TelegramNotifier) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// apiResponse is the envelope of every Bot API reply.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// call invokes a Bot API method with a JSON body and decodes its result into out.
func (t *TelegramNotifier) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.APIBase, t.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram %s: status %d, body: %s", method, resp.StatusCode, string(raw))
	}
	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram %s: %s", method, env.Description)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// Send posts text to the configured chat as HTML.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	return t.call(ctx, "sendMessage", map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}, nil)
}

// SendWithRetry sends text, retrying with exponential backoff capped at 30s.
// Without credentials the message is only logged.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	if !t.Enabled() {
		t.Log.Debug("telegram disabled, dropping message", zap.String("text", text))
		return nil
	}
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}
		lastErr = t.Send(ctx, text)
		if lastErr == nil {
			return nil
		}
		t.Log.Warn("telegram send failed", zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", maxRetries+1, lastErr)
}
