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

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"RiskArena/internal/leaderboard"
	"RiskArena/internal/model"
)

const defaultAPI = "https://api.telegram.org"

// Config configures the classroom chat.
type Config struct {
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	ProxyURL string `yaml:"proxy_url" env:"TELEGRAM_PROXY_URL"`
	// MaxRetries is how many times a failed send is retried.
	MaxRetries int `yaml:"max_retries" env:"TELEGRAM_MAX_RETRIES"`
}

// Enabled reports whether a bot is configured.
func (c Config) Enabled() bool { return c.BotToken != "" && c.ChatID != "" }

// TelegramNotifier posts round summaries via the Telegram Bot API. Reports
// are queued and delivered by Run so callers never wait on the network.
type TelegramNotifier struct {
	BotToken   string
	ChatID     string
	Client     *http.Client
	BaseURL    string
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration

	queue chan string
	log   zerolog.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(cfg Config, log zerolog.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		if u, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &TelegramNotifier{
		BotToken: cfg.BotToken,
		ChatID:   cfg.ChatID,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL:    defaultAPI,
		MaxRetries: retries,
		Backoff:    time.Second,
		queue:      make(chan string, 64),
		log:        log.With().Str("component", "telegram").Logger(),
	}
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	return t.sendTo(ctx, t.ChatID, text)
}

func (t *TelegramNotifier) sendTo(ctx context.Context, chatID, text string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.BotToken)
	payload := map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendWithRetry sends a message, retrying with exponential backoff.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string) error {
	base := t.Backoff
	if base <= 0 {
		base = time.Second
	}
	var (
		attempts int
		lastErr  error
	)
	backoff := retry.WithMaxRetries(uint64(max(t.MaxRetries, 0)), retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := t.Send(ctx, text); err != nil {
			lastErr = err
			t.log.Warn().Err(err).Int("attempt", attempts).Msg("send failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// Run delivers queued reports until ctx is cancelled.
func (t *TelegramNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.queue:
			if err := t.SendWithRetry(ctx, text); err != nil {
				t.log.Error().Err(err).Msg("drop report")
			}
		}
	}
}

func (t *TelegramNotifier) enqueue(text string) {
	select {
	case t.queue <- text:
	default:
		t.log.Warn().Msg("report queue full, dropping message")
	}
}

// RoundClosed queues the round summary and current standings.
func (t *TelegramNotifier) RoundClosed(g *model.Game, round int) {
	t.enqueue(FormatRoundSummary(g, round) + "\n" + FormatLeaderboard(leaderboard.Build(g)))
}

// GameFinished queues the final standings.
func (t *TelegramNotifier) GameFinished(g *model.Game) {
	t.enqueue(FormatGameFinished(leaderboard.Build(g)))
}
