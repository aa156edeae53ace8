package tgexport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdigest/internal/storage"
	"chatdigest/pkg/chat"
)

const sampleExport = `{
  "name": "Earn Users",
  "type": "private_supergroup",
  "id": 1712345,
  "messages": [
    {"id": 10, "type": "service", "date": "2024-03-09T08:00:00", "date_unixtime": "1709971200",
     "actor": "Carol", "actor_id": "user3", "action": "join_group_by_link", "text": ""},
    {"id": 11, "type": "message", "date": "2024-03-09T09:00:00", "date_unixtime": "1709974800",
     "from": "Alice", "from_id": "user1", "text": "hello all"},
    {"id": 12, "type": "message", "date_unixtime": "1709978400",
     "from": "Bob", "from_id": "user2", "reply_to_message_id": 11,
     "text": ["see ", {"type": "link", "text": "https://example.com"}, " now"]},
    {"id": 13, "type": "message", "date_unixtime": "1709982000",
     "from": "Alice", "from_id": "user1", "photo": "photos/photo_1.jpg", "text": ""},
    {"id": 14, "type": "message", "date_unixtime": "1709985600",
     "from": "Bob", "from_id": "user2", "file": "stickers/s.webp", "media_type": "sticker", "text": ""}
  ]
}`

func TestParse(t *testing.T) {
	exp, err := Parse(strings.NewReader(sampleExport))
	require.NoError(t, err)

	assert.Equal(t, "1712345", exp.ChatID)
	assert.Equal(t, "Earn Users", exp.Name)
	assert.Equal(t, []chat.Participant{
		{SenderID: "user3", DisplayName: "Carol"},
		{SenderID: "user1", DisplayName: "Alice"},
		{SenderID: "user2", DisplayName: "Bob"},
	}, exp.Participants)

	require.Len(t, exp.Messages, 4)
	first := exp.Messages[0]
	assert.Equal(t, int64(11), first.ID)
	assert.Equal(t, "1712345", first.ChatID)
	assert.Equal(t, "user1", first.SenderID)
	assert.Equal(t, "hello all", first.Text)
	assert.True(t, first.Timestamp.Equal(time.Unix(1709974800, 0)))

	reply := exp.Messages[1]
	assert.Equal(t, "see https://example.com now", reply.Text)
	assert.Equal(t, int64(11), reply.ReplyToID)

	assert.Equal(t, "Photo", exp.Messages[2].MediaKind)
	assert.Equal(t, "Sticker", exp.Messages[3].MediaKind)
}

func TestParse_DateFallback(t *testing.T) {
	doc := `{"id": 1, "messages": [{"id": 1, "type": "message", "date": "2024-03-09T09:00:00", "from_id": "u", "text": "x"}]}`
	exp, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	want := time.Date(2024, 3, 9, 9, 0, 0, 0, time.Local)
	assert.True(t, exp.Messages[0].Timestamp.Equal(want))
}

func TestParse_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"malformed":     `{"id": 1, "messages": [`,
		"no messages":   `{"id": 1}`,
		"no id":         `{"messages": []}`,
		"bad timestamp": `{"id": 1, "messages": [{"id": 1, "type": "message", "date_unixtime": "soon"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrInvalidExport)
		})
	}
}

func TestImport_Idempotent(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer db.Close()

	exp, err := Parse(strings.NewReader(sampleExport))
	require.NoError(t, err)

	require.NoError(t, Import(db, exp))
	require.NoError(t, Import(db, exp))

	chats, err := db.ListChats(t.Context())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, 4, chats[0].Messages)
}

func TestImportFile_RecordsLastImport(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "archive.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.LastImport("1712345")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	path := filepath.Join(dir, "result.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o600))

	exp, err := ImportFile(db, path)
	require.NoError(t, err)
	assert.Equal(t, "1712345", exp.ChatID)

	last, err := db.LastImport(exp.ChatID)
	require.NoError(t, err)
	assert.Equal(t, path, last)

	n, err := db.ImportedChats()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
