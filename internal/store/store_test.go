package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustRegister(t *testing.T, s *Store, handle string) Target {
	t.Helper()
	target, err := s.RegisterTarget(context.Background(), handle)
	require.NoError(t, err)
	return target
}

func saveVideo(t *testing.T, s *Store, targetID, nativeID string) {
	t.Helper()
	require.NoError(t, s.SaveItem(context.Background(), SaveItemParams{
		TargetID: targetID,
		NativeID: nativeID,
		Kind:     KindVideo,
		Locator:  "https://cdn.example.com/" + nativeID + ".mp4",
	}))
}

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"scamguru", "scamguru"},
		{"@ScamGuru", "scamguru"},
		{"  @Acme.Wellness  ", "acme.wellness"},
		{"@", ""},
	}
	for _, tt := range tests {
		if got := NormalizeHandle(tt.in); got != tt.want {
			t.Errorf("NormalizeHandle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegisterTargetIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.RegisterTarget(ctx, "@ScamGuru")
	require.NoError(t, err)
	assert.Equal(t, "scamguru", first.Handle)
	assert.Len(t, first.CaseID, 12)

	second, err := s.RegisterTarget(ctx, "scamguru")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CaseID, second.CaseID, "re-registering must keep the original case id")

	targets, err := s.ListTargets(ctx)
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestRegisterTargetEmptyHandle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.RegisterTarget(context.Background(), "  @ ")
	require.Error(t, err)
}

func TestFindTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	registered := mustRegister(t, s, "acme")

	found, ok, err := s.FindTarget(ctx, "@Acme")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(registered, found); diff != "" {
		t.Errorf("FindTarget mismatch (-want +got):\n%s", diff)
	}

	_, ok, err = s.FindTarget(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	target := mustRegister(t, s, "acme")

	exists, err := s.ItemExists(ctx, "story_001")
	require.NoError(t, err)
	assert.False(t, exists)

	saveVideo(t, s, target.ID, "story_001")

	exists, err = s.ItemExists(ctx, "story_001")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.ItemExists(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveItemDuplicateIsNoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	target := mustRegister(t, s, "acme")

	saveVideo(t, s, target.ID, "story_001")
	// Same native id again: silent success, no duplicate row.
	saveVideo(t, s, target.ID, "story_001")

	items, err := s.ListItems(ctx, target.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSaveItemValidation(t *testing.T) {
	s := newTestStore(t)
	target := mustRegister(t, s, "acme")

	err := s.SaveItem(context.Background(), SaveItemParams{
		TargetID: target.ID,
		NativeID: "story_bad",
		Kind:     Kind("carousel"),
		Locator:  "https://cdn.example.com/x",
	})
	require.Error(t, err)

	err = s.SaveItem(context.Background(), SaveItemParams{TargetID: target.ID})
	require.Error(t, err)
}

func TestSaveItemBumpsTargetFreshness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	target := mustRegister(t, s, "acme")

	// Advance the clock so the bump is observable.
	base := target.UpdatedAt
	s.now = func() time.Time { return base.Add(time.Hour) }

	saveVideo(t, s, target.ID, "story_001")

	after, ok, err := s.FindTarget(ctx, "acme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, !after.UpdatedAt.Before(base), "updated_at must be monotonic")
	assert.True(t, after.UpdatedAt.After(base))
}

func TestFindUnanalyzedIsVideoOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	target := mustRegister(t, s, "acme")

	saveVideo(t, s, target.ID, "story_v1")
	require.NoError(t, s.SaveItem(ctx, SaveItemParams{
		TargetID: target.ID,
		NativeID: "story_i1",
		Kind:     KindImage,
		Locator:  "https://cdn.example.com/story_i1.jpg",
	}))

	pending, err := s.FindUnanalyzed(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	for _, it := range pending {
		assert.Equal(t, KindVideo, it.Kind)
		assert.False(t, it.Analyzed())
	}
}

func TestWriteAnalysisRetiresItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	target := mustRegister(t, s, "acme")

	saveVideo(t, s, target.ID, "story_v1")
	saveVideo(t, s, target.ID, "story_v2")

	before, err := s.FindUnanalyzed(ctx)
	require.NoError(t, err)
	require.Len(t, before, 2)

	require.NoError(t, s.WriteAnalysis(ctx, "story_v1", "One misleading claim.", "FINDINGS: ..."))

	after, err := s.FindUnanalyzed(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before)-1)

	items, err := s.ListItems(ctx, target.ID)
	require.NoError(t, err)
	for _, it := range items {
		// Atomic pair: never one of summary/full analysis without the other.
		assert.Equal(t, it.Summary != "", it.FullAnalysis != "", "item %s", it.NativeID)
	}
}

func TestWriteAnalysisRequiresBothFields(t *testing.T) {
	s := newTestStore(t)
	target := mustRegister(t, s, "acme")
	saveVideo(t, s, target.ID, "story_v1")

	require.Error(t, s.WriteAnalysis(context.Background(), "story_v1", "", "full"))
	require.Error(t, s.WriteAnalysis(context.Background(), "story_v1", "summary", ""))
}

func TestWriteAnalysisUnknownItem(t *testing.T) {
	s := newTestStore(t)
	err := s.WriteAnalysis(context.Background(), "ghost", "s", "f")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWriteAnalysisBumpsTargetFreshness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	target := mustRegister(t, s, "acme")
	saveVideo(t, s, target.ID, "story_v1")

	before, _, err := s.FindTarget(ctx, "acme")
	require.NoError(t, err)

	s.now = func() time.Time { return before.UpdatedAt.Add(time.Hour) }
	require.NoError(t, s.WriteAnalysis(ctx, "story_v1", "summary", "full"))

	after, _, err := s.FindTarget(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestFindUnanalyzedForTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acme := mustRegister(t, s, "acme")
	other := mustRegister(t, s, "other")

	saveVideo(t, s, acme.ID, "story_a1")
	saveVideo(t, s, other.ID, "story_b1")

	pending, err := s.FindUnanalyzedForTarget(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "story_a1", pending[0].NativeID)
}
