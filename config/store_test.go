package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dstgpt/pubsub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "config", "configs.json"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestOpen_CreatesDefaults(t *testing.T) {
	s := openTemp(t)

	_, err := os.Stat(s.Path())
	require.NoError(t, err)

	settings := s.Settings()
	assert.Equal(t, DefaultBaseModel, settings.BaseModel)
	assert.Equal(t, RAGEnabled, settings.RAG)
	assert.Equal(t, filepath.Join(DefaultVectorstoreDirectory, DefaultIndexFile), settings.VectorstoreFilepath)
	assert.Empty(t, settings.KnowledgeSources)
	assert.Equal(t, DefaultTopK, settings.TopK)
}

func TestSettings_AbsentKeysDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"RAG": "sideways", "TEMPERATURE": 7, "KNOWLEDGE_SOURCES": null}`), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	settings := s.Settings()
	assert.Equal(t, DefaultBaseModel, settings.BaseModel)
	assert.Equal(t, RAGEnabled, settings.RAG)
	assert.Zero(t, settings.Temperature)
	assert.Equal(t, DefaultPromptTemplate, settings.PromptTemplate)
	assert.Equal(t, []string{}, settings.KnowledgeSources)
	assert.Equal(t, DefaultCorpusFilepath, settings.CorpusFilepath)
}

func TestUpdate_PersistsAndNotifies(t *testing.T) {
	s := openTemp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := s.Broker().Subscribe(ctx)

	var seen []Change
	s.Watch(func(c Change) { seen = append(seen, c) })

	require.NoError(t, s.Update(KeyBaseModel, "gpt-4o-mini"))

	require.Len(t, seen, 1)
	assert.Equal(t, KeyBaseModel, seen[0].Key)
	assert.Equal(t, "gpt-4o-mini", seen[0].Value)
	assert.Equal(t, DefaultBaseModel, seen[0].Previous)
	assert.True(t, seen[0].Model)

	var types []pubsub.EventType
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change events")
		}
	}
	assert.Equal(t, []pubsub.EventType{pubsub.UpdatedEvent, pubsub.ModelChangedEvent}, types)

	reopened, err := Open(s.Path())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, "gpt-4o-mini", reopened.Settings().BaseModel)
}

func TestUpdate_NonModelKey(t *testing.T) {
	s := openTemp(t)

	var seen []Change
	s.Watch(func(c Change) { seen = append(seen, c) })

	require.NoError(t, s.Update(KeyRAG, RAGBoth))
	require.Len(t, seen, 1)
	assert.False(t, seen[0].Model)
	assert.Equal(t, RAGBoth, s.Settings().RAG)
}

func TestUpdate_RejectsInvalidValues(t *testing.T) {
	s := openTemp(t)

	cases := []struct {
		key   string
		value any
	}{
		{KeyTemperature, 1.5},
		{KeyTemperature, "hot"},
		{KeyRAG, "sometimes"},
		{KeyPromptTemplate, "no placeholders here"},
		{KeyPromptTemplate, "{context} only"},
		{KeyVectorstoreBackend, "sqlite"},
		{KeyBaseModel, "  "},
		{KeyTopK, 0},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			err := s.Update(tc.key, tc.value)
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}

	assert.Equal(t, DefaultBaseModel, s.Settings().BaseModel)
}

func TestKnowledgeSources_AppendOnly(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.AppendKnowledgeSource("data/items.json"))
	require.NoError(t, s.AppendKnowledgeSource("data/mobs.md"))
	require.NoError(t, s.AppendKnowledgeSource("data/items.json"))

	assert.Equal(t, []string{"data/items.json", "data/mobs.md", "data/items.json"}, s.Settings().KnowledgeSources)

	require.NoError(t, s.Reload())
	assert.Len(t, s.Settings().KnowledgeSources, 3)

	require.NoError(t, s.ResetKnowledgeSources())
	assert.Empty(t, s.Settings().KnowledgeSources)
}

func TestReload_KeepsConcurrentAppends(t *testing.T) {
	s := openTemp(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendKnowledgeSource(fmt.Sprintf("data/page-%d.md", i)))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Reload())
		}()
	}
	wg.Wait()

	assert.Len(t, s.Settings().KnowledgeSources, 20)
	require.NoError(t, s.Reload())
	assert.Len(t, s.Settings().KnowledgeSources, 20)
}

func TestIsModelKey(t *testing.T) {
	for _, key := range []string{KeyBaseModel, KeyTemperature, KeyPromptTemplate, KeyVectorstoreFilepath, KeyVectorstoreDirectory} {
		assert.True(t, IsModelKey(key), key)
	}
	for _, key := range []string{KeyRAG, KeyKnowledgeSources, KeyLog} {
		assert.False(t, IsModelKey(key), key)
	}
}
