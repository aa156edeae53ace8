// Package tgexport imports Telegram Desktop chat exports (result.json)
// into the sqlite archive.
package tgexport

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"chatdigest/pkg/chat"
)

// ErrInvalidExport is returned for input that is not a single-chat export.
var ErrInvalidExport = errors.New("tgexport: invalid export")

// Export is one parsed chat.
type Export struct {
	ChatID       string
	Name         string
	Participants []chat.Participant
	Messages     []chat.RawItem
}

// Parse reads a single-chat Telegram Desktop export. Service messages are
// skipped, but their actors still count as participants.
func Parse(r io.Reader) (*Export, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidExport)
	}

	doc := gjson.ParseBytes(data)
	id := doc.Get("id")
	msgs := doc.Get("messages")
	if !id.Exists() || !msgs.IsArray() {
		return nil, fmt.Errorf("%w: missing id or messages", ErrInvalidExport)
	}

	exp := &Export{
		ChatID: id.String(),
		Name:   doc.Get("name").String(),
	}

	names := make(map[string]string)
	var order []string
	remember := func(senderID, name string) {
		if senderID == "" {
			return
		}
		if _, seen := names[senderID]; !seen {
			order = append(order, senderID)
		}
		if name != "" || names[senderID] == "" {
			names[senderID] = name
		}
	}

	var parseErr error
	msgs.ForEach(func(_, m gjson.Result) bool {
		switch m.Get("type").String() {
		case "message":
			item, err := parseMessage(exp.ChatID, m)
			if err != nil {
				parseErr = err
				return false
			}
			remember(item.SenderID, m.Get("from").String())
			exp.Messages = append(exp.Messages, item)
		case "service":
			remember(m.Get("actor_id").String(), m.Get("actor").String())
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	for _, senderID := range order {
		exp.Participants = append(exp.Participants, chat.Participant{SenderID: senderID, DisplayName: names[senderID]})
	}
	return exp, nil
}

func parseMessage(chatID string, m gjson.Result) (chat.RawItem, error) {
	ts, err := parseDate(m)
	if err != nil {
		return chat.RawItem{}, fmt.Errorf("%w: message %d: %v", ErrInvalidExport, m.Get("id").Int(), err)
	}
	return chat.RawItem{
		ID:        m.Get("id").Int(),
		ChatID:    chatID,
		Timestamp: ts,
		SenderID:  m.Get("from_id").String(),
		Text:      flattenText(m.Get("text")),
		MediaKind: mediaKind(m),
		ReplyToID: m.Get("reply_to_message_id").Int(),
	}, nil
}

func parseDate(m gjson.Result) (time.Time, error) {
	if unix := m.Get("date_unixtime"); unix.Exists() {
		sec, err := strconv.ParseInt(unix.String(), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("date_unixtime: %w", err)
		}
		return time.Unix(sec, 0).UTC(), nil
	}
	// Older exports only carry a local wall-clock date.
	return time.ParseInLocation("2006-01-02T15:04:05", m.Get("date").String(), time.Local)
}

// flattenText joins the string and entity parts of a text field.
func flattenText(v gjson.Result) string {
	if !v.IsArray() {
		return v.String()
	}
	var sb strings.Builder
	v.ForEach(func(_, part gjson.Result) bool {
		if part.Type == gjson.String {
			sb.WriteString(part.String())
		} else {
			sb.WriteString(part.Get("text").String())
		}
		return true
	})
	return sb.String()
}

var mediaTypes = map[string]string{
	"sticker":       "Sticker",
	"animation":     "Animation",
	"video_file":    "Video",
	"video_message": "VideoNote",
	"voice_message": "Voice",
	"audio_file":    "Audio",
}

func mediaKind(m gjson.Result) string {
	if kind, ok := mediaTypes[m.Get("media_type").String()]; ok {
		return kind
	}
	switch {
	case m.Get("photo").Exists():
		return "Photo"
	case m.Get("file").Exists():
		return "Document"
	case m.Get("poll").Exists():
		return "Poll"
	case m.Get("location_information").Exists():
		return "Geo"
	case m.Get("contact_information").Exists():
		return "Contact"
	}
	return ""
}
