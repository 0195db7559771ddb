package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panwatch/panwatch/internal/core/domain"
)

type fakeRepo struct {
	messages []domain.Message
	deleted  []int64
	stats    []Stats
	purged   bool
}

func (f *fakeRepo) MessagesNewestFirst(_ context.Context) ([]domain.Message, error) {
	return f.messages, nil
}

func (f *fakeRepo) MessagesBatch(_ context.Context, offset, limit int) ([]domain.Message, error) {
	if offset >= len(f.messages) {
		return nil, nil
	}

	end := offset + limit
	if end > len(f.messages) {
		end = len(f.messages)
	}

	return f.messages[offset:end], nil
}

func (f *fakeRepo) DeleteMessages(_ context.Context, ids []int64) (int64, error) {
	f.deleted = append(f.deleted, ids...)
	return int64(len(ids)), nil
}

func (f *fakeRepo) InsertDedupStat(_ context.Context, runTime time.Time, inserted, deleted int) error {
	f.stats = append(f.stats, Stats{RunTime: runTime, Inserted: inserted, Deleted: deleted})
	return nil
}

func (f *fakeRepo) PurgeOldDedupStats(_ context.Context, _ time.Duration) (int64, error) {
	f.purged = true
	return 0, nil
}

func msg(id int64, ts time.Time, urls ...string) domain.Message {
	links := domain.Links{}
	for _, u := range urls {
		links["夸克网盘"] = append(links["夸克网盘"], domain.Link{URL: u})
	}

	return domain.Message{ID: id, Timestamp: ts, Links: links}
}

func TestRunStrictNewerWinsOutsideWindow(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{messages: []domain.Message{
		msg(2, base, "https://pan.quark.cn/s/abc"),
		msg(1, base.Add(-time.Hour), "https://pan.quark.cn/s/abc"),
	}}

	engine := New(repo, 10*time.Hour, zerolog.Nop())

	stats, err := engine.RunStrict(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, repo.deleted)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Deleted)
	assert.True(t, repo.purged)
}

func TestRunStrictRicherWinsInsideWindow(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{messages: []domain.Message{
		msg(2, base, "https://pan.quark.cn/s/abc"),
		msg(1, base.Add(-time.Minute), "https://pan.quark.cn/s/abc", "https://pan.baidu.com/s/def"),
	}}

	engine := New(repo, 10*time.Hour, zerolog.Nop())

	stats, err := engine.RunStrict(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{2}, repo.deleted)
	assert.Equal(t, 2, stats.Inserted)
}

func TestRunStrictTieKeepsNewer(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{messages: []domain.Message{
		msg(2, base, "https://pan.quark.cn/s/abc"),
		msg(1, base.Add(-time.Minute), "https://pan.quark.cn/s/abc"),
	}}

	engine := New(repo, 10*time.Hour, zerolog.Nop())

	_, err := engine.RunStrict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, repo.deleted)
}

func TestRunStrictDeletesLoserHoldingOtherURLs(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{messages: []domain.Message{
		msg(2, base, "https://pan.quark.cn/s/aaa", "https://pan.quark.cn/s/ccc"),
		msg(1, base.Add(-time.Minute), "https://pan.quark.cn/s/aaa", "https://pan.quark.cn/s/bbb", "https://pan.quark.cn/s/ddd"),
	}}

	engine := New(repo, 10*time.Hour, zerolog.Nop())

	stats, err := engine.RunStrict(context.Background())
	require.NoError(t, err)

	// Message 2 lost aaa to the richer message 1 and goes away entirely,
	// even though it was the only holder of ccc.
	assert.Equal(t, []int64{2}, repo.deleted)
	assert.Equal(t, 1, stats.Deleted)
}

func TestRunStrictWindowBoundaryKeepsNewer(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{messages: []domain.Message{
		msg(2, base, "https://pan.quark.cn/s/abc"),
		msg(1, base.Add(-Window), "https://pan.quark.cn/s/abc", "https://pan.baidu.com/s/def"),
	}}

	engine := New(repo, 10*time.Hour, zerolog.Nop())

	_, err := engine.RunStrict(context.Background())
	require.NoError(t, err)

	// Exactly 300s apart falls outside the window, so richness is not
	// compared and the newer message survives.
	assert.Equal(t, []int64{1}, repo.deleted)
}

func TestRunStrictResolvesPerURL(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{messages: []domain.Message{
		msg(3, base, "https://pan.quark.cn/s/abc"),
		msg(2, base.Add(-time.Minute), "https://pan.quark.cn/s/abc", "https://pan.baidu.com/s/unique"),
		msg(1, base.Add(-2*time.Hour), "https://pan.baidu.com/s/unique"),
	}}

	engine := New(repo, 10*time.Hour, zerolog.Nop())

	_, err := engine.RunStrict(context.Background())
	require.NoError(t, err)

	// Message 3 lost abc to the richer message 2, message 1 lost
	// unique to message 2 outside the window.
	assert.ElementsMatch(t, []int64{1, 3}, repo.deleted)
}

func TestRunStrictNormalizesURLs(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{messages: []domain.Message{
		msg(2, base, "https://PAN.QUARK.CN/s/ABC "),
		msg(1, base.Add(-time.Hour), "https://pan.quark.cn/s/abc"),
	}}

	engine := New(repo, 10*time.Hour, zerolog.Nop())

	_, err := engine.RunStrict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, repo.deleted)
}

func TestRunStreamingFirstHolderWins(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var messages []domain.Message
	for i := int64(0); i < 1200; i++ {
		messages = append(messages, msg(2000-i, base.Add(-time.Duration(i)*time.Minute), "https://pan.quark.cn/s/same"))
	}

	repo := &fakeRepo{messages: messages}
	engine := New(repo, 10*time.Hour, zerolog.Nop())

	stats, err := engine.RunStreaming(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1199, stats.Deleted)
	assert.NotContains(t, repo.deleted, int64(2000))
}

func TestRunStreamingKeepsDistinctURLs(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{messages: []domain.Message{
		msg(2, base, "https://pan.quark.cn/s/a"),
		msg(1, base.Add(-time.Minute), "https://pan.quark.cn/s/b"),
	}}

	engine := New(repo, 10*time.Hour, zerolog.Nop())

	stats, err := engine.RunStreaming(context.Background())
	require.NoError(t, err)

	assert.Empty(t, repo.deleted)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 0, stats.Deleted)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims and lowercases", "  https://Pan.Quark.cn/s/X  ", "https://pan.quark.cn/s/x"},
		{"already normal", "https://pan.baidu.com/s/1", "https://pan.baidu.com/s/1"},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}
