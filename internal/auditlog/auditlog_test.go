package auditlog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func testEntry() Entry {
	return Entry{
		Timestamp: testTime,
		Actor:     "bursar",
		Action:    "match_manual",
		Details:   "matched 1500.00 CR to PAY-2025-01-0003",
		Subject:   "bank-tx-1",
		Ref:       "PAY-2025-01-0003",
	}
}

func TestAppend_NewFile(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.Append(testEntry()))

	entries, err := l.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bursar", entries[0].Actor)

	raw, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), Header+"\n")
}

func TestAppend_ExistingFile(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.Append(testEntry()))

	e2 := testEntry()
	e2.Actor = "system"
	e2.Action = "auto_match"
	require.NoError(t, l.Append(e2))

	entries, err := l.Read()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bursar", entries[0].Actor)
	assert.Equal(t, "system", entries[1].Actor)
}

func TestAppend_StampsMissingTimestamp(t *testing.T) {
	l := New(t.TempDir())
	l.now = func() time.Time { return testTime }

	e := testEntry()
	e.Timestamp = time.Time{}
	require.NoError(t, l.Append(e))

	entries, err := l.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, testTime.Equal(entries[0].Timestamp))
}

func TestRead_RoundTrip(t *testing.T) {
	l := New(t.TempDir())
	original := testEntry()
	original.Details = `note with "quotes", commas`
	require.NoError(t, l.Append(original))

	entries, err := l.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.True(t, original.Timestamp.Equal(got.Timestamp))
	got.Timestamp = original.Timestamp
	assert.Equal(t, original, got)
}

func TestRead_NotFound(t *testing.T) {
	entries, err := New(t.TempDir()).Read()
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRead_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logs", "audit-log.csv"), []byte(Header+"\n"), 0o644))

	entries, err := New(dir).Read()
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestNilLog(t *testing.T) {
	var l *Log
	assert.NoError(t, l.Append(testEntry()))
	entries, err := l.Read()
	assert.NoError(t, err)
	assert.Nil(t, entries)
}

func TestAppend_Concurrent(t *testing.T) {
	l := New(t.TempDir())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(testEntry()))
		}()
	}
	wg.Wait()

	entries, err := l.Read()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestUnmarshalEntry_Errors(t *testing.T) {
	_, err := UnmarshalEntry([]string{"a"})
	assert.ErrorContains(t, err, "expected 6 fields")

	_, err = UnmarshalEntry([]string{"yesterday", "a", "b", "c", "d", "e"})
	assert.ErrorContains(t, err, "parsing timestamp")
}
