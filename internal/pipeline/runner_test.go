package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdigest/internal/cache"
	"chatdigest/internal/format"
	"chatdigest/internal/provider"
	"chatdigest/internal/render"
	"chatdigest/internal/storage"
	"chatdigest/internal/summarize"
	"chatdigest/pkg/chat"
	"chatdigest/pkg/chat/chattest"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.prompts = append(p.prompts, req.Messages[0].Content)
	if p.err != nil {
		return nil, p.err
	}
	if p.reply != "" {
		return &provider.ChatResponse{Content: p.reply}, nil
	}
	return &provider.ChatResponse{Content: "- Ann shipped the release"}, nil
}

func (p *fakeProvider) Stream(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	return nil, errors.New("not used")
}

type recordingSender struct {
	sent []string
	err  error
}

func (s *recordingSender) Name() string { return "recorder" }

func (s *recordingSender) Send(_ context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

// limitedSender caps messages at limit runes and fails from the failAt-th
// send on (1-based, 0 never).
type limitedSender struct {
	recordingSender
	limit  int
	failAt int
	calls  int
}

func (s *limitedSender) MessageLimit() int { return s.limit }

func (s *limitedSender) Send(ctx context.Context, text string) error {
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return chat.WrapTransport("send", errors.New("bad gateway"))
	}
	return s.recordingSender.Send(ctx, text)
}

type fixture struct {
	src      *chattest.Memory
	provider *fakeProvider
	sender   *recordingSender
	db       *storage.DB
	shard    *cache.FileShard
	renderer *render.Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{
		src: &chattest.Memory{
			ID: "earn",
			Items: []chat.RawItem{
				{ID: 1, Timestamp: day.Add(-2 * time.Hour), SenderID: "u1", Text: "old news"},
				{ID: 2, Timestamp: day.Add(9 * time.Hour), SenderID: "u1", Text: "release is out https://example.com/r"},
				{ID: 3, Timestamp: day.Add(10 * time.Hour), SenderID: "u2", Text: "nice", ReplyToID: 2},
				{ID: 4, Timestamp: day.Add(11 * time.Hour), SenderID: "u3", MediaKind: "Photo"},
			},
			People: []chat.Participant{{SenderID: "u1", DisplayName: "Ann"}, {SenderID: "u2", DisplayName: "Bob"}},
		},
		provider: &fakeProvider{},
		sender:   &recordingSender{},
		db:       db,
		shard:    &cache.FileShard{Path: filepath.Join(t.TempDir(), "summaries.json")},
		renderer: render.New("Chat digest", "Generated automatically.", time.UTC),
	}
}

func (f *fixture) runner() *Runner {
	return NewRunner(Deps{
		Source:   f.src,
		Provider: f.provider,
		Sender:   f.sender,
		Renderer: f.renderer,
		Ledger:   f.db,
		Shards:   []cache.Shard{f.shard},
		Output:   f.shard,
	}, Config{
		PageSize: 2,
		FetchCap: 100,
		Budget:   1000,
		Format: format.Options{
			RenderUpstream:       true,
			IncludeSenderName:    true,
			ExcludeSelfGenerated: true,
			ReplaceURLs:          true,
		},
		Summary: summarize.Config{Model: "m", Concurrency: 1, Prompts: summarize.Prompts{Context: "ctx"}},
	}, zerolog.Nop())
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t)

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.NoError(t, err)

	assert.Equal(t, storage.RunSucceeded, res.Status)
	assert.Equal(t, 3, res.Messages)
	assert.Equal(t, 3, res.Lines)
	assert.Equal(t, 1, res.Batches)
	assert.True(t, res.Delivered)
	assert.Equal(t, 1, f.provider.calls)

	prompt := f.provider.prompts[0]
	assert.Contains(t, prompt, "[Ann] release is out <URL>")
	assert.Contains(t, prompt, "<Reply to `release is out <URL>`> [Bob] nice")
	assert.NotContains(t, prompt, "old news")

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "Chat digest: 2026-03-14\n\n- Ann shipped the release\n\nGenerated automatically.", f.sender.sent[0])
	assert.True(t, f.renderer.IsSelfGenerated(f.sender.sent[0]))

	run, err := f.db.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunSucceeded, run.Status)
	assert.Equal(t, res.Digest, run.Summary)
	assert.NotNil(t, run.FinishedAt)

	entries, err := f.shard.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRun_RerunHitsCache(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.NoError(t, err)

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.calls)
	assert.Equal(t, 1, res.Cache.Hits)
	assert.Len(t, f.sender.sent, 2)
}

func TestRun_EmptyWindow(t *testing.T) {
	f := newFixture(t)

	res, err := f.runner().Run(context.Background(), DayWindow(day.AddDate(0, 0, 5), time.UTC), Options{})
	require.NoError(t, err)
	assert.Equal(t, storage.RunEmpty, res.Status)
	assert.Zero(t, f.provider.calls)
	assert.Empty(t, f.sender.sent)

	run, err := f.db.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunEmpty, run.Status)
}

func TestRun_OnlySelfGeneratedIsEmpty(t *testing.T) {
	f := newFixture(t)
	digest := f.renderer.Render("- old summary", day.AddDate(0, 0, -1), day)
	f.src.Items = []chat.RawItem{{ID: 9, Timestamp: day.Add(8 * time.Hour), SenderID: "bot", Text: digest}}

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.NoError(t, err)
	assert.Equal(t, storage.RunEmpty, res.Status)
	assert.Equal(t, 1, res.Messages)

	keep := format.Options{IncludeSenderName: true}
	res, err = f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{Format: &keep})
	require.NoError(t, err)
	assert.Equal(t, storage.RunSucceeded, res.Status)
	assert.Contains(t, f.provider.prompts[0], "[unknown] Chat digest:")
}

func TestRun_DryRunDoesNotSend(t *testing.T) {
	f := newFixture(t)

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, storage.RunSucceeded, res.Status)
	assert.False(t, res.Delivered)
	assert.NotEmpty(t, res.Digest)
	assert.Empty(t, f.sender.sent)
}

func TestRun_BudgetOverride(t *testing.T) {
	f := newFixture(t)

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{DryRun: true, Budget: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 3, f.provider.calls)
}

func TestRun_ModelFailureSendsNothing(t *testing.T) {
	f := newFixture(t)
	f.provider.err = provider.NewProviderError(provider.ErrCodeContextWindowExceeded, "too long", "fake", false)

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, summarize.ErrInputTooLarge)
	assert.Equal(t, storage.RunFailed, res.Status)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, res.Digest)

	run, err := f.db.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunFailed, run.Status)
	assert.Contains(t, run.Error, "too large")
}

func TestRun_SourceFailure(t *testing.T) {
	f := newFixture(t)
	f.src.Err = errors.New("flood wait")

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrTransport)
	assert.Equal(t, storage.RunFailed, res.Status)
	assert.Zero(t, f.provider.calls)
}

func TestRun_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.err = chat.WrapTransport("send", errors.New("bot blocked"))

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrTransport)
	assert.Equal(t, storage.RunFailed, res.Status)
	assert.False(t, res.Delivered)

	// the summary itself was computed and cached
	entries, err := f.shard.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRun_InvalidWindow(t *testing.T) {
	f := newFixture(t)
	res, err := f.runner().Run(context.Background(), Window{Start: day, End: day}, Options{})
	require.Error(t, err)
	assert.Equal(t, storage.RunFailed, res.Status)

	runs, err := f.db.ListRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_NoLedger(t *testing.T) {
	f := newFixture(t)
	r := NewRunner(Deps{Source: f.src, Provider: f.provider}, Config{FetchCap: 10, Budget: 100}, zerolog.Nop())

	res, err := r.Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.NoError(t, err)
	assert.Equal(t, storage.RunSucceeded, res.Status)
	assert.True(t, strings.HasPrefix(res.Digest, render.DefaultStartMarker+": "))
}

func longReply(lines int) string {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		b.WriteString("- Ann shipped release candidate number " + strings.Repeat("x", 20) + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func TestRun_LongDigestIsSentInRecognizableParts(t *testing.T) {
	f := newFixture(t)
	f.provider.reply = longReply(40)
	sender := &limitedSender{limit: 500}

	r := f.runner()
	r.deps.Sender = sender
	res, err := r.Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	require.Greater(t, len(sender.sent), 1)
	assert.Equal(t, len(sender.sent), res.Parts)

	// posted back into the chat, the parts must not feed the next digest
	next := day.AddDate(0, 0, 1)
	for i, part := range sender.sent {
		assert.LessOrEqual(t, len([]rune(part)), sender.limit)
		f.src.Items = append(f.src.Items, chat.RawItem{
			ID: int64(100 + i), Timestamp: next.Add(time.Duration(i) * time.Minute), SenderID: "bot", Text: part,
		})
	}
	f.src.Items = append(f.src.Items, chat.RawItem{ID: 200, Timestamp: next.Add(time.Hour), SenderID: "u1", Text: "thanks bot"})

	res, err = r.Run(context.Background(), DayWindow(next, time.UTC), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, len(sender.sent)+1, res.Messages)
	assert.Equal(t, 1, res.Lines)
}

func TestRun_PartialDelivery(t *testing.T) {
	f := newFixture(t)
	f.provider.reply = longReply(40)
	sender := &limitedSender{limit: 500, failAt: 2}

	r := f.runner()
	r.deps.Sender = sender
	res, err := r.Run(context.Background(), DayWindow(day, time.UTC), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrPartialSend)
	assert.ErrorIs(t, err, chat.ErrTransport)
	assert.False(t, res.Delivered)
	assert.Len(t, sender.sent, 1)
}

func TestRun_WindowExcludesItsEnd(t *testing.T) {
	f := newFixture(t)
	midnight := day.AddDate(0, 0, 1)
	f.src.Items = append(f.src.Items, chat.RawItem{ID: 5, Timestamp: midnight, SenderID: "u2", Text: "right at midnight"})

	res, err := f.runner().Run(context.Background(), DayWindow(day, time.UTC), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Messages)
	assert.NotContains(t, f.provider.prompts[0], "right at midnight")

	res, err = f.runner().Run(context.Background(), DayWindow(midnight, time.UTC), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Messages)
	assert.Contains(t, f.provider.prompts[1], "right at midnight")
}
