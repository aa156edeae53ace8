// Package format turns raw chat items into the one-line-per-message text
// that is batched into prompts.
package format

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"chatdigest/pkg/chat"
)

// Length caps, in runes.
const (
	MaxSenderName = 24
	MaxUpstream   = 50
)

// Options select which parts of a message are serialized.
type Options struct {
	RenderUpstream       bool
	IncludeSenderName    bool
	ExcludeSelfGenerated bool
	ReplaceURLs          bool
}

// SelfFilter recognizes digests this program posted earlier.
type SelfFilter interface {
	IsSelfGenerated(text string) bool
}

// Message is one cleaned chat message.
type Message struct {
	ID        int64
	Sender    string
	Text      string
	MediaKind string
	ReplyToID int64
	Upstream  string
}

// Line serializes m as
// [<Reply to `upstream`>] [[Sender]] [<Media>] [text]
// leaving out absent parts.
func (m Message) Line(includeSender bool) string {
	parts := make([]string, 0, 4)
	if m.Upstream != "" {
		parts = append(parts, "<Reply to `"+m.Upstream+"`>")
	}
	if includeSender && m.Sender != "" {
		parts = append(parts, "["+m.Sender+"]")
	}
	if m.MediaKind != "" {
		parts = append(parts, "<"+m.MediaKind+">")
	}
	if m.Text != "" {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, " ")
}

// Formatter converts raw items to prompt lines.
type Formatter struct {
	src  chat.Source
	dir  *Directory
	self SelfFilter
	log  zerolog.Logger
}

// New creates a Formatter. src is used for reply lookups; self may be nil
// when self-generated filtering is never requested.
func New(src chat.Source, dir *Directory, self SelfFilter, log zerolog.Logger) *Formatter {
	return &Formatter{src: src, dir: dir, self: self, log: log}
}

// Format returns one line per summarizable item, in input order.
func (f *Formatter) Format(ctx context.Context, items []chat.RawItem, opts Options) ([]string, error) {
	msgs, err := f.Messages(ctx, items, opts)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.Line(opts.IncludeSenderName)
	}
	return lines, nil
}

// Messages does the work of Format but returns the structured messages.
func (f *Formatter) Messages(ctx context.Context, items []chat.RawItem, opts Options) ([]Message, error) {
	cleaner := Cleaner{ReplaceURLs: opts.ReplaceURLs}
	warned := make(map[string]bool)

	msgs := make([]Message, 0, len(items))
	for _, it := range items {
		// Checked on the raw body, before cleaning flattens the template.
		if opts.ExcludeSelfGenerated && f.isSelf(it.Text) {
			f.log.Debug().Int64("message_id", it.ID).Msg("dropping self-generated message")
			continue
		}

		m := Message{
			ID:        it.ID,
			Sender:    f.senderName(it.SenderID, warned),
			Text:      cleaner.Clean(it.Text),
			MediaKind: it.MediaKind,
			ReplyToID: it.ReplyToID,
		}
		if m.Text == "" && m.MediaKind == "" {
			continue
		}
		msgs = append(msgs, m)
	}

	if opts.RenderUpstream {
		if err := f.attachUpstream(ctx, msgs, cleaner, opts); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

func (f *Formatter) isSelf(text string) bool {
	return f.self != nil && f.self.IsSelfGenerated(text)
}

func (f *Formatter) senderName(senderID string, warned map[string]bool) string {
	name, ok := f.dir.Lookup(senderID)
	if !ok {
		if !warned[senderID] {
			warned[senderID] = true
			f.log.Warn().Str("sender_id", senderID).Msg("unresolved sender")
		}
		return UnknownSender
	}
	return truncate(strings.TrimSpace(name), MaxSenderName)
}

// attachUpstream resolves every distinct reply target in one lookup.
// Missing targets leave Upstream empty.
func (f *Formatter) attachUpstream(ctx context.Context, msgs []Message, cleaner Cleaner, opts Options) error {
	seen := make(map[int64]bool)
	var ids []int64
	for _, m := range msgs {
		if m.ReplyToID != 0 && !seen[m.ReplyToID] {
			seen[m.ReplyToID] = true
			ids = append(ids, m.ReplyToID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	targets, err := f.src.FetchByIDs(ctx, ids)
	if err != nil {
		return chat.WrapTransport("fetch reply targets", err)
	}

	upstream := make(map[int64]string, len(targets))
	for _, t := range targets {
		if opts.ExcludeSelfGenerated && f.isSelf(t.Text) {
			continue
		}
		text := cleaner.Clean(t.Text)
		if text == "" && t.MediaKind != "" {
			text = "<" + t.MediaKind + ">"
		}
		if text != "" {
			upstream[t.ID] = truncate(text, MaxUpstream)
		}
	}

	for i := range msgs {
		if msgs[i].ReplyToID != 0 {
			msgs[i].Upstream = upstream[msgs[i].ReplyToID]
		}
	}
	return nil
}
