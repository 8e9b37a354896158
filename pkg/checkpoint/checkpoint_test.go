package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bhascraper/pkg/daterange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRange(t *testing.T) daterange.Range {
	t.Helper()
	r, err := daterange.Parse("2024-01-15", "2024-03-10")
	require.NoError(t, err)
	return r
}

func TestCheckpointManager(t *testing.T) {
	dir := t.TempDir()
	r := testRange(t)

	mgr, err := NewManager(dir, r, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "checkpoints", "2024-01-15_2024-03-10.checkpoint.json"), mgr.Path())

	t.Run("LoadMissing", func(t *testing.T) {
		cp, err := mgr.Load()
		require.NoError(t, err)
		assert.Nil(t, cp)
		assert.False(t, mgr.Exists())
	})

	t.Run("CreateAndLoad", func(t *testing.T) {
		cp, err := mgr.Create(r)
		require.NoError(t, err)
		assert.Equal(t, "2024-01-15..2024-03-10", cp.Range)
		assert.Equal(t, currentVersion, cp.Version)

		loaded, err := mgr.Load()
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, cp.Range, loaded.Range)
		assert.Empty(t, loaded.CompletedMonths)
	})

	t.Run("CompleteMonth", func(t *testing.T) {
		cp, err := mgr.LoadOrCreate(r)
		require.NoError(t, err)

		jan := Month{Year: 2024, Month: 1}
		require.NoError(t, mgr.CompleteMonth(cp, jan, Counters{Fixtures: 2, Races: 10, Documents: 12}))
		require.NoError(t, mgr.CompleteMonth(cp, jan, Counters{Skipped: 1}))

		loaded, err := mgr.Load()
		require.NoError(t, err)
		assert.Equal(t, []Month{jan}, loaded.CompletedMonths)
		assert.True(t, loaded.IsMonthDone(jan))
		assert.False(t, loaded.IsMonthDone(Month{Year: 2024, Month: 2}))
		assert.Equal(t, Counters{Fixtures: 2, Races: 10, Skipped: 1, Documents: 12}, loaded.Counters)
	})

	t.Run("Backup", func(t *testing.T) {
		require.NoError(t, mgr.Backup())
		_, err := os.Stat(mgr.Path() + ".backup")
		assert.NoError(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		require.True(t, mgr.Exists())
		require.NoError(t, mgr.Delete())
		assert.False(t, mgr.Exists())
		assert.NoError(t, mgr.Delete())
	})
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), testRange(t), nil)
	require.NoError(t, err)

	fixed := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return fixed }

	cp, err := mgr.Create(testRange(t))
	require.NoError(t, err)
	assert.Equal(t, fixed, cp.UpdatedAt)

	_, err = os.Stat(mgr.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadCorruptCheckpoint(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), testRange(t), nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mgr.Path(), []byte("{not json"), 0644))

	_, err = mgr.Load()
	assert.Error(t, err)
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), testRange(t), nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mgr.Path(), []byte(`{"range":"x","version":99}`), 0644))

	_, err = mgr.Load()
	assert.ErrorContains(t, err, "newer than supported")
}

func TestMonthString(t *testing.T) {
	assert.Equal(t, "2024-03", Month{Year: 2024, Month: 3}.String())
}
