package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdigest/internal/config"
	"chatdigest/pkg/chat"
)

type botServer struct {
	mu       sync.Mutex
	received []sendMessageRequest
	paths    []string
	status   int
	failFrom int // 1-based request number from which requests fail
}

func (b *botServer) handler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var req sendMessageRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	b.received = append(b.received, req)
	b.paths = append(b.paths, r.URL.Path)
	if b.status != 0 || (b.failFrom > 0 && len(b.received) >= b.failFrom) {
		status := b.status
		if status == 0 {
			status = http.StatusBadGateway
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
}

func TestTelegram_Send(t *testing.T) {
	bot := &botServer{}
	srv := httptest.NewServer(http.HandlerFunc(bot.handler))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{APIBase: srv.URL + "/", Token: "123:abc", ChatID: "-10042"}, srv.Client(), zerolog.Nop())
	require.NoError(t, tg.Send(context.Background(), "hello digest"))

	require.Len(t, bot.received, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", bot.paths[0])
	assert.Equal(t, "-10042", bot.received[0].ChatID)
	assert.Equal(t, "hello digest", bot.received[0].Text)
}

func TestTelegram_SendSplitsLongText(t *testing.T) {
	bot := &botServer{}
	srv := httptest.NewServer(http.HandlerFunc(bot.handler))
	defer srv.Close()

	text := strings.Repeat("é", MaxMessageRunes+10)
	tg := NewTelegram(TelegramConfig{APIBase: srv.URL, Token: "t", ChatID: "c"}, srv.Client(), zerolog.Nop())
	require.NoError(t, tg.Send(context.Background(), text))

	require.Len(t, bot.received, 2)
	assert.Equal(t, MaxMessageRunes, utf8.RuneCountInString(bot.received[0].Text))
	assert.Equal(t, text, bot.received[0].Text+bot.received[1].Text)
}

func TestTelegram_PartialSend(t *testing.T) {
	bot := &botServer{failFrom: 2}
	srv := httptest.NewServer(http.HandlerFunc(bot.handler))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{APIBase: srv.URL, Token: "t", ChatID: "c"}, srv.Client(), zerolog.Nop())
	err := tg.Send(context.Background(), strings.Repeat("x", 2*MaxMessageRunes+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrPartialSend)
	assert.ErrorIs(t, err, chat.ErrTransport)

	var pe *chat.PartialSendError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Sent)
	assert.Equal(t, 3, pe.Total)
}

func TestTelegram_FirstPartFailureIsNotPartial(t *testing.T) {
	bot := &botServer{failFrom: 1}
	srv := httptest.NewServer(http.HandlerFunc(bot.handler))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{APIBase: srv.URL, Token: "t", ChatID: "c"}, srv.Client(), zerolog.Nop())
	err := tg.Send(context.Background(), strings.Repeat("x", MaxMessageRunes+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrTransport)
	assert.NotErrorIs(t, err, chat.ErrPartialSend)
	assert.Equal(t, MaxMessageRunes, tg.MessageLimit())
}

func TestTelegram_Non2xxIsTransportError(t *testing.T) {
	bot := &botServer{status: http.StatusBadRequest}
	srv := httptest.NewServer(http.HandlerFunc(bot.handler))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{APIBase: srv.URL, Token: "t", ChatID: "c"}, srv.Client(), zerolog.Nop())
	err := tg.Send(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrTransport)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegram_ConnectionErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	tg := NewTelegram(TelegramConfig{APIBase: url, Token: "secret-token", ChatID: "c"}, nil, zerolog.Nop())
	err := tg.Send(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrTransport)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))
	assert.Equal(t, []string{""}, SplitMessage("", 10))

	parts := SplitMessage("line one\nline two\nline three", 12)
	assert.Equal(t, []string{"line one\n", "line two\n", "line three"}, parts)

	// no newline in reach: hard cut
	parts = SplitMessage("abcdefghij", 4)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, parts)
}

func TestWriter_Send(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter("stdout", &buf)
	require.NoError(t, w.Send(context.Background(), "digest"))
	assert.Equal(t, "digest\n", buf.String())
	assert.Equal(t, "stdout", w.Name())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestWriter_SendError(t *testing.T) {
	err := NewWriter("stdout", failingWriter{}).Send(context.Background(), "digest")
	assert.ErrorIs(t, err, chat.ErrTransport)
}

func TestOpen(t *testing.T) {
	var buf bytes.Buffer

	s, err := Open(config.DeliveryConfig{Kind: "stdout"}, &buf, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, KindStdout, s.Name())

	s, err = Open(config.DeliveryConfig{Kind: "none"}, &buf, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, s.Send(context.Background(), "dropped"))
	assert.Zero(t, buf.Len())

	s, err = Open(config.DeliveryConfig{Kind: "telegram", BotToken: "t", ChatID: "c"}, &buf, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, KindTelegram, s.Name())

	_, err = Open(config.DeliveryConfig{Kind: "telegram"}, &buf, zerolog.Nop())
	assert.Error(t, err)

	_, err = Open(config.DeliveryConfig{Kind: "pigeon"}, &buf, zerolog.Nop())
	assert.Error(t, err)
}
