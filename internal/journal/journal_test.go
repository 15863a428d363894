package journal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stately/internal/state"
)

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func counterObject(t *testing.T, id string) *state.Object {
	t.Helper()
	typ := state.NewType("Counter").
		Field("n", state.OfType[int]()).
		Field("label", state.Default("c")).
		MustBuild()
	o, err := state.New(typ,
		state.WithID(id),
		state.WithIDGenerator(state.NewSequenceGenerator(id)),
		state.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	return o
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)

	ctx := context.Background()
	mode, err := j.pragma(ctx, "journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	fk, err := j.pragma(ctx, "foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, "1", fk)

	version, err := j.pragma(ctx, "user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, j.Close())
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer")
}

func TestAttach_RecordsEveryStage(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	o := counterObject(t, "c1")

	_, err := j.Attach(ctx, o)
	require.NoError(t, err)

	require.NoError(t, o.Set("n", 1))
	require.NoError(t, o.Delete("n"))

	entries, err := j.Entries(ctx, Filter{Object: "c1"})
	require.NoError(t, err)

	var stages []string
	for _, e := range entries {
		stages = append(stages, e.Kind+"/"+e.Stage)
	}
	assert.Equal(t, []string{
		"set event/pending",
		"set event/validating",
		"set event/working",
		"set event/done",
		"set event/none",
		"del event/pending",
		"del event/working",
		"del event/done",
		"del event/none",
	}, stages)

	first := entries[0]
	assert.Equal(t, "n", first.Field)
	assert.Equal(t, `{"undefined":true}`, first.Old)
	assert.Equal(t, "1", first.New)
	assert.Equal(t, int64(1), first.Seq)

	last := entries[len(entries)-1]
	assert.Equal(t, "1", last.Old)
	assert.Equal(t, int64(2), last.Seq)
}

func TestAttach_FailedEventsAreTraced(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	o := counterObject(t, "c1")
	_, err := j.Attach(ctx, o)
	require.NoError(t, err)

	err = o.Set("n", "not a number")
	require.True(t, state.IsValidation(err))

	entries, err := j.Entries(ctx, Filter{Object: "c1"})
	require.NoError(t, err)
	require.Len(t, entries, 1, "only pending notified before validation failed")
	assert.Equal(t, "pending", entries[0].Stage)
	assert.Equal(t, `"not a number"`, entries[0].New)
}

func TestAttach_BatchID(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	o := counterObject(t, "c1")
	_, err := j.Attach(ctx, o)
	require.NoError(t, err)

	require.NoError(t, o.Update(map[string]any{"n": 5, "label": "five"}))

	entries, err := j.Entries(ctx, Filter{Object: "c1", Stage: "done"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "n", entries[0].Field)
	assert.Equal(t, "label", entries[1].Field)
	assert.NotEmpty(t, entries[0].Batch)
	assert.Equal(t, entries[0].Batch, entries[1].Batch)
}

func TestEntries_Filters(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	a := counterObject(t, "a")
	b := counterObject(t, "b")
	_, err := j.Attach(ctx, a)
	require.NoError(t, err)
	_, err = j.Attach(ctx, b)
	require.NoError(t, err)

	require.NoError(t, a.Set("n", 1))
	require.NoError(t, a.Set("label", "x"))
	require.NoError(t, b.Set("n", 2))

	all, err := j.Entries(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 15)

	byField, err := j.Entries(ctx, Filter{Object: "a", Field: "label"})
	require.NoError(t, err)
	assert.Len(t, byField, 5)

	byEvent, err := j.Entries(ctx, Filter{EventID: byField[0].EventID})
	require.NoError(t, err)
	assert.Equal(t, byField, byEvent)

	none, err := j.Entries(ctx, Filter{Object: "missing"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	objects, err := j.Objects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Object{
		{ID: "a", Type: "Counter", Entries: 10},
		{ID: "b", Type: "Counter", Entries: 5},
	}, objects)
}

func TestAttach_Unobserve(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	o := counterObject(t, "c1")
	ob, err := j.Attach(ctx, o)
	require.NoError(t, err)

	require.NoError(t, o.Set("n", 1))
	o.Unobserve(ob)
	require.NoError(t, o.Set("n", 2))

	entries, err := j.Entries(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestAttach_ClosedJournalHaltsEvent(t *testing.T) {
	ctx := context.Background()
	j := setupTestJournal(t)
	o := counterObject(t, "c1")
	_, err := j.Attach(ctx, o)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	err = o.Set("n", 1)
	require.Error(t, err)
	assert.True(t, state.IsHalted(err))
	assert.False(t, o.Has("n"))
}
