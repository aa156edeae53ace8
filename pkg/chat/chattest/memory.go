// Package chattest provides an in-memory chat.Source for tests.
package chattest

import (
	"context"
	"sort"
	"sync"

	"chatdigest/pkg/chat"
)

// Memory is a chat.Source over a fixed set of items. It counts calls so
// tests can assert on batching behavior.
type Memory struct {
	ID     string
	Items  []chat.RawItem
	People []chat.Participant

	// Err, when set, is returned by every call.
	Err error

	mu                sync.Mutex
	PageCalls         int
	ParticipantCalls  int
	FetchByIDsCalls   int
	LastFetchByIDsArg []int64
}

// ChatID implements chat.Source.
func (m *Memory) ChatID() string { return m.ID }

// FetchPage implements chat.Source, newest first.
func (m *Memory) FetchPage(_ context.Context, q chat.PageQuery) ([]chat.RawItem, error) {
	m.mu.Lock()
	m.PageCalls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, chat.WrapTransport("fetch page", m.Err)
	}

	sorted := append([]chat.RawItem(nil), m.Items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].ID > sorted[j].ID
	})

	var page []chat.RawItem
	for _, it := range sorted {
		if q.BeforeID > 0 && it.ID >= q.BeforeID {
			continue
		}
		if !q.BeforeTime.IsZero() && it.Timestamp.After(q.BeforeTime) {
			continue
		}
		page = append(page, it)
		if q.Limit > 0 && len(page) == q.Limit {
			break
		}
	}
	return page, nil
}

// Participants implements chat.Source.
func (m *Memory) Participants(context.Context) ([]chat.Participant, error) {
	m.mu.Lock()
	m.ParticipantCalls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, chat.WrapTransport("list participants", m.Err)
	}
	return m.People, nil
}

// FetchByIDs implements chat.Source.
func (m *Memory) FetchByIDs(_ context.Context, ids []int64) ([]chat.RawItem, error) {
	m.mu.Lock()
	m.FetchByIDsCalls++
	m.LastFetchByIDsArg = append([]int64(nil), ids...)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, chat.WrapTransport("fetch by ids", m.Err)
	}

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []chat.RawItem
	for _, it := range m.Items {
		if want[it.ID] {
			out = append(out, it)
		}
	}
	return out, nil
}

var _ chat.Source = (*Memory)(nil)
