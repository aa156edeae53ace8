package ollama

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"chatdigest/internal/provider"
)

// ProcessStream processes JSON line stream from Ollama and returns a channel of ChatEvents.
// Ollama uses newline-delimited JSON (NDJSON), not SSE format.
// The channel is closed after the done event or the first error.
func ProcessStream(r io.ReadCloser, log zerolog.Logger) <-chan provider.ChatEvent {
	events := make(chan provider.ChatEvent)

	go func() {
		defer close(events)
		defer r.Close()

		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024) // 1MB max

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var resp ollamaResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				log.Error().Err(err).Str("line", string(line)).Msg("failed to parse stream line")
				events <- provider.ChatEvent{
					Type:  provider.EventTypeError,
					Error: fmt.Errorf("%w: %v", ErrInvalidResponse, err),
				}
				return
			}

			// Ollama may return {"error":"..."} inside the stream body
			if resp.Error != "" {
				log.Error().Str("error", resp.Error).Msg("stream returned inline error")
				events <- provider.ChatEvent{
					Type: provider.EventTypeError,
					Error: &provider.ProviderError{
						Code:     provider.ClassifyMessage(resp.Error, provider.ErrCodeUnknown),
						Message:  resp.Error,
						Provider: Name,
					},
				}
				return
			}

			if resp.Message.Content != "" {
				events <- provider.ChatEvent{
					Type:  provider.EventTypeContent,
					Delta: resp.Message.Content,
				}
			}

			if resp.Done {
				events <- provider.ChatEvent{
					Type:         provider.EventTypeDone,
					Usage:        usage(&resp),
					FinishReason: finishReason(resp.DoneReason),
				}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("error reading stream")
			events <- provider.ChatEvent{
				Type:  provider.EventTypeError,
				Error: err,
			}
		}
	}()

	return events
}
