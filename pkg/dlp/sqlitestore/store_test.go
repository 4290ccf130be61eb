package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellwarden/cellwarden/pkg/dlp"
	"github.com/cellwarden/cellwarden/pkg/sheet"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classifications.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutThenList_RoundTripsSelectorAndLevel(t *testing.T) {
	s := newTestStore(t)
	rec := dlp.ClassificationRecord{
		Selector:       dlp.Selector{Kind: dlp.SelectorColumn, Sheet: "Sheet1", Column: 2},
		Classification: dlp.Classification{Level: dlp.Confidential, Labels: []string{"pii"}},
	}
	require.NoError(t, s.Put("doc-1", rec))

	records, err := s.List("doc-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, dlp.SelectorColumn, records[0].Selector.Kind)
	assert.Equal(t, "Sheet1", records[0].Selector.Sheet)
	assert.Equal(t, 2, records[0].Selector.Column)
	assert.Equal(t, dlp.Confidential, records[0].Classification.Level)
	assert.Equal(t, []string{"pii"}, records[0].Classification.Labels)
}

func TestStore_List_ScopesToDocument(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("doc-1", dlp.ClassificationRecord{
		Selector:       dlp.Selector{Kind: dlp.SelectorDocument},
		Classification: dlp.Classification{Level: dlp.Internal},
	}))
	require.NoError(t, s.Put("doc-2", dlp.ClassificationRecord{
		Selector:       dlp.Selector{Kind: dlp.SelectorDocument},
		Classification: dlp.Classification{Level: dlp.Restricted},
	}))

	records, err := s.List("doc-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, dlp.Internal, records[0].Classification.Level)
}

func TestStore_List_RangeSelectorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rng := sheet.Range{Sheet: "Sheet1", StartRow: 0, EndRow: 5, StartCol: 0, EndCol: 2}
	require.NoError(t, s.Put("doc-1", dlp.ClassificationRecord{
		Selector:       dlp.Selector{Kind: dlp.SelectorRange, Range: rng},
		Classification: dlp.Classification{Level: dlp.Restricted},
	}))

	records, err := s.List("doc-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rng, records[0].Selector.Range)
}

func TestStore_DeleteDocument_RemovesAllItsRecords(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("doc-1", dlp.ClassificationRecord{
		Selector:       dlp.Selector{Kind: dlp.SelectorDocument},
		Classification: dlp.Classification{Level: dlp.Internal},
	}))
	require.NoError(t, s.DeleteDocument("doc-1"))

	records, err := s.List("doc-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
