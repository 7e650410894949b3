package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDb(t *testing.T) *Database {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "sub", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestHistoryNewestFirst(t *testing.T) {
	t.Parallel()

	db := openTestDb(t)
	now := time.Now()

	for i := 0; i < 30; i++ {
		err := db.AddHistory(HistoryEntry{
			// identical timestamps must not overwrite each other
			Time:    now,
			Action:  ActionRead,
			UID:     "04a23b91",
			Text:    fmt.Sprintf("entry %d", i),
			Success: true,
		})
		require.NoError(t, err)
	}

	entries, err := db.GetHistory()
	require.NoError(t, err)
	require.Len(t, entries, maxHistory)
	assert.Equal(t, "entry 29", entries[0].Text)
	assert.Equal(t, "entry 5", entries[maxHistory-1].Text)
	assert.Equal(t, ActionRead, entries[0].Action)
}

func TestHistoryEmpty(t *testing.T) {
	t.Parallel()

	db := openTestDb(t)

	entries, err := db.GetHistory()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPruneHistory(t *testing.T) {
	t.Parallel()

	db := openTestDb(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, db.AddHistory(HistoryEntry{
			Action: ActionWrite,
			Text:   fmt.Sprintf("entry %d", i),
		}))
	}

	deleted, err := db.PruneHistory(3)
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)

	entries, err := db.GetHistory()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "entry 9", entries[0].Text)
	assert.Equal(t, "entry 7", entries[2].Text)

	require.NoError(t, db.AddHistory(HistoryEntry{Text: "after prune"}))
	entries, err = db.GetHistory()
	require.NoError(t, err)
	assert.Equal(t, "after prune", entries[0].Text)
}
