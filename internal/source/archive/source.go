// Package archive serves chat history from the local sqlite archive that
// Telegram exports are imported into.
package archive

import (
	"context"

	"chatdigest/internal/storage"
	"chatdigest/pkg/chat"
)

// Source implements chat.Source for one archived chat.
type Source struct {
	db     *storage.DB
	chatID string
}

// New returns a Source reading chatID from db.
func New(db *storage.DB, chatID string) *Source {
	return &Source{db: db, chatID: chatID}
}

// ChatID implements chat.Source.
func (s *Source) ChatID() string {
	return s.chatID
}

// FetchPage implements chat.Source.
func (s *Source) FetchPage(ctx context.Context, q chat.PageQuery) ([]chat.RawItem, error) {
	items, err := s.db.MessagesBefore(ctx, s.chatID, q.BeforeID, q.BeforeTime, q.Limit)
	if err != nil {
		return nil, chat.WrapTransport("fetch page", err)
	}
	return items, nil
}

// Participants implements chat.Source.
func (s *Source) Participants(ctx context.Context) ([]chat.Participant, error) {
	people, err := s.db.ListParticipants(ctx, s.chatID)
	if err != nil {
		return nil, chat.WrapTransport("list participants", err)
	}
	return people, nil
}

// FetchByIDs implements chat.Source.
func (s *Source) FetchByIDs(ctx context.Context, ids []int64) ([]chat.RawItem, error) {
	items, err := s.db.MessagesByIDs(ctx, s.chatID, ids)
	if err != nil {
		return nil, chat.WrapTransport("fetch by ids", err)
	}
	return items, nil
}

var _ chat.Source = (*Source)(nil)
