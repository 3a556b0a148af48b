package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/housesprinkler/controller/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	on        bool
	rain      domain.RainDelay
	schedules []domain.Schedule
}

func (f *fakeSource) GlobalOn() bool               { return f.on }
func (f *fakeSource) Rain() domain.RainDelay        { return f.rain }
func (f *fakeSource) Snapshot() []domain.Schedule   { return f.schedules }

func TestPeriodic_SkipsWriteWhenNotDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	src := &fakeSource{on: true}
	s := New(path, src, nil, zerolog.Nop())

	s.Periodic(time.Now())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPeriodic_WritesWhenDirty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	id := uuid.New()
	src := &fakeSource{
		on:   true,
		rain: domain.RainDelay{Enabled: true, Deadline: 500},
		schedules: []domain.Schedule{
			{ID: id, LastLaunch: 1000},
		},
	}
	s := New(path, src, nil, zerolog.Nop())

	s.MarkChanged()
	s.Periodic(time.Now())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var st domain.PersistedState
	require.NoError(t, json.Unmarshal(data, &st))
	assert.True(t, st.On)
	assert.Equal(t, int64(500), st.RainDelay)
	require.Len(t, st.Schedule, 1)
	assert.Equal(t, id, st.Schedule[0].ID)
	assert.Equal(t, int64(1000), st.Schedule[0].Launched)
}

func TestPeriodic_DebouncesWithinOneSecond(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	src := &fakeSource{on: true}
	s := New(path, src, nil, zerolog.Nop())

	now := time.Now()
	s.MarkChanged()
	s.Periodic(now)

	info1, err := os.Stat(path)
	require.NoError(t, err)

	src.on = false
	s.MarkChanged()
	s.Periodic(now.Add(200 * time.Millisecond))

	info2, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())

	s.Periodic(now.Add(2 * time.Second))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st domain.PersistedState
	require.NoError(t, json.Unmarshal(data, &st))
	assert.False(t, st.On)
}

// blockedPath returns a path whose parent directory can never be created,
// so saveLocal's os.MkdirAll always fails: dir is a plain file, not a
// directory, sitting where a path component needs to be.
func blockedPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	return filepath.Join(blocker, "state.json")
}

func TestPeriodic_RetriesOnWriteFailureThenGivesUpAfterTenSeconds(t *testing.T) {
	path := blockedPath(t)
	var buf bytes.Buffer
	s := New(path, &fakeSource{on: true}, nil, zerolog.New(&buf).Level(zerolog.WarnLevel))

	t0 := time.Now()
	s.MarkChanged()
	s.Periodic(t0)
	assert.True(t, s.dirty, "a failed write should stay dirty so the next tick retries")
	assert.Contains(t, buf.String(), "failed to persist state, will retry")

	buf.Reset()
	s.Periodic(t0.Add(5 * time.Second))
	assert.True(t, s.dirty, "still within the give-up window")

	buf.Reset()
	s.Periodic(t0.Add(11 * time.Second))
	assert.False(t, s.dirty, "should give up and drop the pending write past the give-up window")
	assert.Contains(t, buf.String(), "giving up persisting state")
}

func TestLoad_MissingFileReturnsZeroValue(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, st.On)
	assert.Empty(t, st.Schedule)
}

func TestLoad_RoundTripsWhatWasSaved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	id := uuid.New()
	src := &fakeSource{on: true, schedules: []domain.Schedule{{ID: id, LastLaunch: 42}}}
	s := New(path, src, nil, zerolog.Nop())
	s.MarkChanged()
	s.Periodic(time.Now())

	st, err := Load(path)
	require.NoError(t, err)
	assert.True(t, st.On)
	require.Len(t, st.Schedule, 1)
	assert.Equal(t, id, st.Schedule[0].ID)
}

func TestPushToDepot_NoopWithoutDepotConfigured(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := New(path, &fakeSource{}, nil, zerolog.Nop())

	err := s.PushToDepot(context.Background())
	assert.NoError(t, err)
}
