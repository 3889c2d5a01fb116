package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/internal/vector/milvus"
)

type fakeVectors struct {
	inserted []milvus.ChunkVector
	err      error
}

func (f *fakeVectors) Insert(_ context.Context, vectors []milvus.ChunkVector) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, vectors...)
	return nil
}

func openTestStore(t *testing.T) *sqlite.Client {
	t.Helper()

	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.InitSchema())
	return store
}

func testDoc(text string) Document {
	return Document{
		Scope:       "global",
		SourceType:  "guide",
		Capability:  "market_brief",
		Marketplace: "etsy",
		Language:    "en",
		Text:        text,
	}
}

func TestProcessDocumentStoresChunks(t *testing.T) {
	store := openTestStore(t)
	vectors := &fakeVectors{}
	p := NewProcessor(store, vectors)

	ids, err := p.ProcessDocument(context.Background(), testDoc("ceramic mugs sell well before the winter holidays"))
	require.NoError(t, err)
	require.Len(t, ids, 1)

	chunks, err := store.ListCorpusChunks(context.Background(), "market_brief", "etsy", "en")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ids[0], chunks[0].ID)
	assert.True(t, chunks[0].HasEmbedding)
	assert.Len(t, vectors.inserted, 1)
	assert.Equal(t, ids[0], vectors.inserted[0].ChunkID)
}

func TestProcessDocumentSplitsLongText(t *testing.T) {
	store := openTestStore(t)
	p := NewProcessor(store, &fakeVectors{})

	// Roughly 3KB of words forces multiple chunks at the 1000-byte size.
	text := strings.TrimSpace(strings.Repeat("handmade ceramic mug listing advice ", 100))

	ids, err := p.ProcessDocument(context.Background(), testDoc(text))
	require.NoError(t, err)
	assert.Greater(t, len(ids), 1)

	chunks, err := store.ListCorpusChunks(context.Background(), "market_brief", "etsy", "en")
	require.NoError(t, err)
	assert.Len(t, chunks, len(ids))
}

func TestProcessDocumentEmptyText(t *testing.T) {
	store := openTestStore(t)
	p := NewProcessor(store, &fakeVectors{})

	_, err := p.ProcessDocument(context.Background(), testDoc("   "))
	assert.Error(t, err)
}

func TestProcessDocumentVectorFailureKeepsRows(t *testing.T) {
	store := openTestStore(t)
	p := NewProcessor(store, &fakeVectors{err: errors.New("index down")})

	ids, err := p.ProcessDocument(context.Background(), testDoc("stoneware bowls are trending this season"))
	require.NoError(t, err)
	require.Len(t, ids, 1)

	chunks, err := store.ListCorpusChunks(context.Background(), "market_brief", "etsy", "en")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.False(t, chunks[0].HasEmbedding)
}

func TestProcessDocumentNilVectorsLexicalOnly(t *testing.T) {
	store := openTestStore(t)
	p := NewProcessor(store, nil)

	ids, err := p.ProcessDocument(context.Background(), testDoc("leather wallets compete on durability"))
	require.NoError(t, err)
	require.Len(t, ids, 1)

	chunks, err := store.ListCorpusChunks(context.Background(), "market_brief", "etsy", "en")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.False(t, chunks[0].HasEmbedding)
}
