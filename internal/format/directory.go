package format

import (
	"context"

	"chatdigest/pkg/chat"
)

// UnknownSender labels items whose sender is not in the directory.
const UnknownSender = "unknown"

// Directory maps sender ids to display names. It is loaded once, before
// formatting starts, and is read-only afterwards.
type Directory struct {
	names map[string]string
}

// LoadDirectory reads the participant list of src.
func LoadDirectory(ctx context.Context, src chat.Source) (*Directory, error) {
	people, err := src.Participants(ctx)
	if err != nil {
		return nil, chat.WrapTransport("list participants", err)
	}
	return NewDirectory(people), nil
}

// NewDirectory builds a Directory from a participant list. Participants
// without a display name are left out.
func NewDirectory(people []chat.Participant) *Directory {
	names := make(map[string]string, len(people))
	for _, p := range people {
		if p.DisplayName != "" {
			names[p.SenderID] = p.DisplayName
		}
	}
	return &Directory{names: names}
}

// Lookup returns the display name for senderID.
func (d *Directory) Lookup(senderID string) (string, bool) {
	if d == nil {
		return "", false
	}
	name, ok := d.names[senderID]
	return name, ok
}

// Len returns the number of known senders.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}
