package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"chatdigest/internal/render"
	"chatdigest/pkg/chat"
)

// MaxMessageRunes is the Bot API limit for one text message.
const MaxMessageRunes = 4096

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// TelegramConfig configures the Bot API sender.
type TelegramConfig struct {
	APIBase string
	Token   string
	ChatID  string
}

// Telegram sends digests through the Bot API sendMessage method.
type Telegram struct {
	config TelegramConfig
	client *http.Client
	log    zerolog.Logger
}

// NewTelegram creates a Telegram sender.
func NewTelegram(cfg TelegramConfig, client *http.Client, log zerolog.Logger) *Telegram {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if client == nil {
		client = http.DefaultClient
	}
	return &Telegram{config: cfg, client: client, log: log.With().Str("sender", KindTelegram).Logger()}
}

// Name returns "telegram".
func (t *Telegram) Name() string { return KindTelegram }

// MessageLimit returns the Bot API limit, so digests are split into
// self-describing parts before they reach Send.
func (t *Telegram) MessageLimit() int { return MaxMessageRunes }

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send posts text, split into sequential parts when it is over the limit.
// A failure after the first part is a PartialSendError.
func (t *Telegram) Send(ctx context.Context, text string) error {
	parts := SplitMessage(text, MaxMessageRunes)
	for i, part := range parts {
		if err := t.send(ctx, part); err != nil {
			err = chat.WrapTransport(fmt.Sprintf("sendMessage part %d/%d", i+1, len(parts)), err)
			if i > 0 {
				return &chat.PartialSendError{Sent: i, Total: len(parts), Err: err}
			}
			return err
		}
	}
	t.log.Info().Str("chat_id", t.config.ChatID).Int("parts", len(parts)).Msg("digest sent")
	return nil
}

func (t *Telegram) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.config.ChatID, Text: text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.config.APIBase, t.config.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the token is part of the URL
		return fmt.Errorf("post sendMessage: %s", strings.ReplaceAll(err.Error(), t.config.Token, "<token>"))
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var ar apiResponse
	_ = json.Unmarshal(data, &ar)
	if resp.StatusCode/100 != 2 || !ar.OK {
		desc := ar.Description
		if desc == "" {
			desc = strings.TrimSpace(string(data))
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, desc)
	}
	return nil
}

// SplitMessage cuts text into parts of at most limit runes, preferring to
// break after a newline. Concatenating the parts gives back text.
func SplitMessage(text string, limit int) []string {
	return render.Split(text, limit)
}
