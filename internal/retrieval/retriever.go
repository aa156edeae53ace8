// Package retrieval pages backward through a chat's history to collect the
// items inside a time window.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"chatdigest/pkg/chat"
)

// DefaultPageSize is used when a Retriever is built with a non-positive page size.
const DefaultPageSize = 100

// ErrInvalidCap is returned when the fetch cap is not positive.
var ErrInvalidCap = errors.New("retrieval: cap must be positive")

// Retriever fetches a window of items from a chat.Source.
type Retriever struct {
	src      chat.Source
	pageSize int
	log      zerolog.Logger
}

// New creates a Retriever.
func New(src chat.Source, pageSize int, log zerolog.Logger) *Retriever {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Retriever{src: src, pageSize: pageSize, log: log}
}

// Fetch returns the items with start <= timestamp <= end, oldest first,
// stopping once maxItems have been collected.
//
// Pages are requested newest first. The first item older than start ends
// the whole fetch, so a source that returns items out of order within the
// window can truncate the result; items newer than end are skipped.
func (r *Retriever) Fetch(ctx context.Context, start, end time.Time, maxItems int) ([]chat.RawItem, error) {
	if maxItems <= 0 {
		return nil, ErrInvalidCap
	}
	if end.Before(start) {
		return nil, nil
	}

	var (
		items []chat.RawItem
		q     = chat.PageQuery{BeforeTime: end, Limit: r.pageSize}
		pages int
	)

fetch:
	for {
		page, err := r.src.FetchPage(ctx, q)
		if err != nil {
			return nil, chat.WrapTransport("fetch page", err)
		}
		pages++
		if len(page) == 0 {
			break
		}

		cursor := q.BeforeID
		for _, it := range page {
			if q.BeforeID > 0 && it.ID >= q.BeforeID {
				continue
			}
			if cursor == 0 || it.ID < cursor {
				cursor = it.ID
			}
			if it.Timestamp.After(end) {
				continue
			}
			if it.Timestamp.Before(start) {
				break fetch
			}
			items = append(items, it)
			if len(items) >= maxItems {
				r.log.Debug().Int("cap", maxItems).Msg("fetch cap reached")
				break fetch
			}
		}

		if cursor == q.BeforeID {
			// The source ignored the cursor; stop rather than loop forever.
			r.log.Warn().Int64("cursor", cursor).Msg("page did not advance cursor")
			break
		}
		q.BeforeID = cursor
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})

	r.log.Debug().
		Time("start", start).
		Time("end", end).
		Int("pages", pages).
		Int("items", len(items)).
		Msg("fetched window")
	return items, nil
}
