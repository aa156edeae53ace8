// Package provider defines the text model collaborator: a Provider takes a
// chat request and returns the full response, either at once or as a
// stream of events.
package provider

import "context"

// Provider is a text generation backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Chat sends a chat request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Stream sends a chat request and returns a channel of streaming events.
	// The channel is closed after a done or error event.
	Stream(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
}

// HealthCheckable is implemented by providers that can report availability.
type HealthCheckable interface {
	// Ping checks if the provider is available
	Ping(ctx context.Context) error
}

// ModelReporter is implemented by providers that fill in a default model
// when a request names none.
type ModelReporter interface {
	Model() string
}

// ModelVerifier is implemented by providers that can tell whether the
// configured model is available, not only the server.
type ModelVerifier interface {
	VerifyModel(ctx context.Context) error
}

// Complete runs req and always returns the whole response. With stream set
// the request goes through Stream and the events are collected.
func Complete(ctx context.Context, p Provider, req ChatRequest, stream bool) (*ChatResponse, error) {
	if !stream {
		return p.Chat(ctx, req)
	}
	req.Stream = true
	events, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return Collect(ctx, events)
}

// Collect drains events into one response. It returns on the first error
// event or when ctx is done.
func Collect(ctx context.Context, events <-chan ChatEvent) (*ChatResponse, error) {
	resp := &ChatResponse{FinishReason: FinishReasonStop}
	var content []byte

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				resp.Content = string(content)
				return resp, nil
			}
			switch ev.Type {
			case EventTypeContent:
				content = append(content, ev.Delta...)
			case EventTypeDone:
				resp.Usage = ev.Usage
				if ev.FinishReason != "" {
					resp.FinishReason = ev.FinishReason
				}
			case EventTypeError:
				return nil, ev.Error
			}
		}
	}
}
