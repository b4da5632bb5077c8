package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ks-ai/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSeeder struct {
	created   []*models.Content
	submitted []uuid.UUID
	purged    []string
	purgeOK   bool
}

func (r *recordingSeeder) Create(ctx context.Context, c *models.Content) error {
	r.created = append(r.created, c)
	return nil
}

func (r *recordingSeeder) Submit(ctx context.Context, id uuid.UUID) bool {
	r.submitted = append(r.submitted, id)
	return true
}

func (r *recordingSeeder) DeleteContentVectors(ctx context.Context, contentID, sourceURL string) bool {
	r.purged = append(r.purged, contentID)
	return r.purgeOK
}

type seedFixture struct {
	manifest string
	cache    string
	upload   string
}

func newSeedFixture(t *testing.T, pdfBody string, cached *ProcessedSource) *seedFixture {
	t.Helper()
	dir := t.TempDir()
	f := &seedFixture{
		manifest: filepath.Join(dir, "manifest.json"),
		cache:    filepath.Join(dir, ".seed_cache.json"),
		upload:   dir,
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "speech.pdf"), []byte(pdfBody), 0o644))
	require.NoError(t, os.WriteFile(f.manifest,
		[]byte(`[{"title":"Speech","source":"speech.pdf","type":"pdf","language":"en","category":"Politics"}]`), 0o644))

	cache := &CacheData{ProcessedSources: map[string]ProcessedSource{}}
	if cached != nil {
		cache.ProcessedSources[cached.Source] = *cached
	}
	require.NoError(t, saveCache(f.cache, cache))
	return f
}

func (f *seedFixture) run(t *testing.T, seeder *recordingSeeder) *CacheData {
	t.Helper()
	require.NoError(t, seedKnowledgeBase(context.Background(), f.manifest, f.cache, f.upload, seeder, seeder, seeder, zap.NewNop()))
	cache, err := loadCache(f.cache)
	require.NoError(t, err)
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cacheFile := filepath.Join(t.TempDir(), ".seed_cache.json")

	cache, err := loadCache(cacheFile)
	require.NoError(t, err)
	assert.Empty(t, cache.ProcessedSources)

	cache.ProcessedSources["a.pdf"] = ProcessedSource{Source: "a.pdf", Hash: "h", ProcessedAt: time.Unix(0, 0).UTC()}
	require.NoError(t, saveCache(cacheFile, cache))

	loaded, err := loadCache(cacheFile)
	require.NoError(t, err)
	assert.Equal(t, "h", loaded.ProcessedSources["a.pdf"].Hash)
}

func TestSourceHash(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("one"), 0o644))

	first, err := sourceHash(ManifestEntry{Source: "a.pdf", Type: "pdf"}, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("two"), 0o644))
	second, err := sourceHash(ManifestEntry{Source: "a.pdf", Type: "pdf"}, dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = sourceHash(ManifestEntry{Source: "missing.pdf", Type: "pdf"}, dir)
	assert.Error(t, err)

	video, err := sourceHash(ManifestEntry{Source: "https://youtu.be/abc", Type: "youtube"}, dir)
	require.NoError(t, err)
	assert.Len(t, video, 32)
}

func TestLoadManifest(t *testing.T) {
	entries, err := loadManifest("manifest.json")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SKCRF", entries[0].Category)
	assert.Equal(t, "youtube", entries[1].Type)
}

func TestSeed_ChangedSourceReplacesOldVectors(t *testing.T) {
	f := newSeedFixture(t, "new version", &ProcessedSource{Source: "speech.pdf", Hash: "stale", ContentID: "old-id"})
	seeder := &recordingSeeder{purgeOK: true}

	cache := f.run(t, seeder)

	assert.Equal(t, []string{"old-id"}, seeder.purged)
	require.Len(t, seeder.created, 1)
	assert.Equal(t, []uuid.UUID{seeder.created[0].ID}, seeder.submitted)
	assert.Equal(t, seeder.created[0].ID.String(), cache.ProcessedSources["speech.pdf"].ContentID)
	assert.NotEqual(t, "stale", cache.ProcessedSources["speech.pdf"].Hash)
}

func TestSeed_ChangedSourceKeptWhenPurgeFails(t *testing.T) {
	f := newSeedFixture(t, "new version", &ProcessedSource{Source: "speech.pdf", Hash: "stale", ContentID: "old-id"})
	seeder := &recordingSeeder{purgeOK: false}

	cache := f.run(t, seeder)

	assert.Equal(t, []string{"old-id"}, seeder.purged)
	assert.Empty(t, seeder.created)
	assert.Equal(t, "old-id", cache.ProcessedSources["speech.pdf"].ContentID)
}

func TestSeed_NewAndUnchangedSources(t *testing.T) {
	f := newSeedFixture(t, "body", nil)
	seeder := &recordingSeeder{purgeOK: true}

	f.run(t, seeder)
	require.Len(t, seeder.created, 1)
	assert.Empty(t, seeder.purged)

	f.run(t, seeder)
	assert.Len(t, seeder.created, 1)
	assert.Empty(t, seeder.purged)
}
