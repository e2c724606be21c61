package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/lepinkainen/feed-alerts/pkg/api"
)

const (
	DefaultTelegramAPIBase = "https://api.telegram.org"
	ParseModeHTML          = "HTML"

	sendMessagePath = "/bot{token}/sendMessage"
	redacted        = "<redacted>"
)

var (
	ErrMissingToken = errors.New("telegram bot token is empty")
	ErrMissingChat  = errors.New("telegram chat id is empty")
)

// TelegramConfig configures the Bot API notifier.
type TelegramConfig struct {
	BotToken       string
	ChatID         string
	APIBase        string
	ParseMode      string
	DisablePreview bool
	Timeout        time.Duration
	Retry          *api.RetryPolicy
}

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	client *resty.Client
	config TelegramConfig
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// NewTelegram validates cfg and builds the notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, ErrMissingToken
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		return nil, ErrMissingChat
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultTelegramAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = api.DefaultRetryPolicy()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "feed-alerts/1.0").
		SetLogger(&restyLogger{token: cfg.BotToken})

	return &Telegram{client: client, config: cfg}, nil
}

// Send delivers text, splitting it into several messages when it exceeds the Bot API limit.
func (t *Telegram) Send(ctx context.Context, text string) error {
	// Escape first so the limit is measured on what Telegram actually receives.
	if t.config.ParseMode == ParseModeHTML {
		text = html.EscapeString(text)
	}

	chunks := SplitMessage(text, MaxMessageLength)
	for i, chunk := range chunks {
		err := api.ExecuteWithRetry(ctx, func(ctx context.Context) error {
			return t.sendOnce(ctx, chunk)
		}, t.config.Retry, "telegram sendMessage")
		if err != nil {
			return fmt.Errorf("send message part %d/%d: %w", i+1, len(chunks), err)
		}
		slog.Debug("Telegram message sent", "part", i+1, "parts", len(chunks), "length", textLength(chunk))
	}
	return nil
}

// sendOnce posts text as is; it must already be escaped for the parse mode.
func (t *Telegram) sendOnce(ctx context.Context, text string) error {
	form := map[string]string{
		"chat_id":                  t.config.ChatID,
		"text":                     text,
		"disable_web_page_preview": strconv.FormatBool(t.config.DisablePreview),
	}
	if t.config.ParseMode != "" {
		form["parse_mode"] = t.config.ParseMode
	}

	var result telegramResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.config.BotToken).
		SetFormData(form).
		SetResult(&result).
		SetError(&result).
		Post(sendMessagePath)
	if err != nil {
		return redactError(err, t.config.BotToken)
	}

	if resp.IsError() || !result.OK {
		message := result.Description
		if message == "" {
			message = resp.Status()
		}
		return &api.HTTPError{
			StatusCode: resp.StatusCode(),
			Message:    redact(message, t.config.BotToken),
			RetryAfter: time.Duration(result.Parameters.RetryAfter) * time.Second,
		}
	}

	return nil
}

// redactedError hides the bot token from the message while keeping the cause for errors.Is/As.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redactError(err error, token string) error {
	if err == nil {
		return nil
	}
	return &redactedError{msg: redact(err.Error(), token), err: err}
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, redacted)
}

// restyLogger routes resty's own warnings into slog without leaking the token.
type restyLogger struct {
	token string
}

func (l *restyLogger) Errorf(format string, v ...any) {
	slog.Error(redact(fmt.Sprintf(format, v...), l.token), "component", "resty")
}

func (l *restyLogger) Warnf(format string, v ...any) {
	slog.Warn(redact(fmt.Sprintf(format, v...), l.token), "component", "resty")
}

func (l *restyLogger) Debugf(format string, v ...any) {
	slog.Debug(redact(fmt.Sprintf(format, v...), l.token), "component", "resty")
}
