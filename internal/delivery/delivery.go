// Package delivery posts rendered digests to an output channel.
package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"chatdigest/internal/config"
	"chatdigest/pkg/chat"
)

// Kinds accepted by Open.
const (
	KindTelegram = "telegram"
	KindStdout   = "stdout"
	KindNone     = "none"
)

// Open builds the sender configured by cfg. stdout writes go to out.
func Open(cfg config.DeliveryConfig, out io.Writer, log zerolog.Logger) (chat.Sender, error) {
	switch cfg.Kind {
	case KindTelegram:
		if cfg.BotToken == "" || cfg.ChatID == "" {
			return nil, fmt.Errorf("delivery: telegram needs bot_token and chat_id")
		}
		return NewTelegram(TelegramConfig{
			APIBase: cfg.APIBase,
			Token:   cfg.BotToken,
			ChatID:  cfg.ChatID,
		}, http.DefaultClient, log), nil
	case KindStdout, "":
		return NewWriter(KindStdout, out), nil
	case KindNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("delivery: unknown kind %q", cfg.Kind)
	}
}

// Nop discards every digest.
type Nop struct{}

// Name returns "none".
func (Nop) Name() string { return KindNone }

// Send does nothing.
func (Nop) Send(context.Context, string) error { return nil }
