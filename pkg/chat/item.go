package chat

import "time"

// RawItem is one message as fetched from a chat source. Absent text is "".
type RawItem struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chatId"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text,omitempty"`
	MediaKind string    `json:"mediaKind,omitempty"` // e.g. Photo, Document, Sticker
	ReplyToID int64     `json:"replyToId,omitempty"` // 0 when not a reply
}

// HasMedia reports whether the item carries an attachment.
func (r RawItem) HasMedia() bool {
	return r.MediaKind != ""
}

// IsReply reports whether the item replies to another item.
func (r RawItem) IsReply() bool {
	return r.ReplyToID != 0
}

// Participant is a chat member as listed by the source.
type Participant struct {
	SenderID    string `json:"senderId"`
	DisplayName string `json:"displayName"`
}

// PageQuery selects one page of history, newest first.
// Zero BeforeID and zero BeforeTime mean "no bound".
type PageQuery struct {
	BeforeID   int64
	BeforeTime time.Time
	Limit      int
}
