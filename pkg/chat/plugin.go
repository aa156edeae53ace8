// Package chat defines the boundary between the digest pipeline and the
// conversational source it reads from and the channel it posts to.
package chat

import "context"

// Source is a read-only view of one chat's history.
type Source interface {
	// ChatID returns the identifier of the chat this source reads.
	ChatID() string

	// FetchPage returns up to q.Limit items with ID < q.BeforeID and
	// Timestamp <= q.BeforeTime, ordered by decreasing timestamp.
	FetchPage(ctx context.Context, q PageQuery) ([]RawItem, error)

	// Participants lists the chat members.
	Participants(ctx context.Context) ([]Participant, error)

	// FetchByIDs returns the items that exist among ids, in any order.
	FetchByIDs(ctx context.Context, ids []int64) ([]RawItem, error)
}

// Sender delivers a rendered digest to an output channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// MessageLimiter is implemented by senders that cap the length of one
// message, in runes. Longer digests are posted as several parts.
type MessageLimiter interface {
	MessageLimit() int
}
