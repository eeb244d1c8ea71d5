package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dstgpt/pubsub"

	"github.com/bytedance/sonic"
)

// ErrInvalidValue is returned when a setting is rejected before being written.
var ErrInvalidValue = errors.New("invalid configuration value")

// Change describes one successful write to the configuration document.
type Change struct {
	Key      string
	Value    any
	Previous any
	// Model is set when the key invalidates model, embedding and retrieval handles.
	Model bool
}

// Watcher is called synchronously after a write has been persisted.
type Watcher func(Change)

// Store is the persisted key-value configuration document.
// Writes are persisted before watchers run and before events are published.
type Store struct {
	path     string
	mu       sync.RWMutex
	doc      map[string]any
	watchers []Watcher
	broker   *pubsub.Broker[Change]
}

// Open loads the document at path, creating it with defaults when missing.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		doc:    make(map[string]any),
		broker: pubsub.NewBroker[Change](),
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.doc = defaultDocument()
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultDocument() map[string]any {
	return map[string]any{
		KeyBaseModel:            DefaultBaseModel,
		KeyTemperature:          0.0,
		KeyPromptTemplate:       DefaultPromptTemplate,
		KeyVectorstoreDirectory: DefaultVectorstoreDirectory,
		KeyVectorstoreFilepath:  filepath.Join(DefaultVectorstoreDirectory, DefaultIndexFile),
		KeyVectorstoreBackend:   BackendLocal,
		KeyEmbeddingModel:       DefaultEmbeddingModel,
		KeyRAG:                  RAGEnabled,
		KeyKnowledgeSources:     []any{},
		KeyCorpusFilepath:       DefaultCorpusFilepath,
		KeyLog:                  "enabled",
		KeyTopK:                 float64(DefaultTopK),
	}
}

// Path returns the location of the configuration document.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the document from disk without notifying anyone.
// The read and the swap happen under the write lock, so a write persisted
// meanwhile is never replaced by an older copy of the file.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", s.path, err)
	}

	doc := make(map[string]any)
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := sonic.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", s.path, err)
		}
	}
	s.doc = doc
	return nil
}

// Settings returns a typed snapshot of the current document.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return settingsFromDoc(s.doc)
}

// Watch registers a callback run after every successful write.
func (s *Store) Watch(w Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, w)
}

// Broker exposes change events for asynchronous consumers such as the UI.
func (s *Store) Broker() *pubsub.Broker[Change] {
	return s.broker
}

// Update validates and writes one key, then notifies watchers and subscribers.
func (s *Store) Update(key string, value any) error {
	value, err := normalize(key, value)
	if err != nil {
		return err
	}
	return s.write(key, func(map[string]any) any { return value })
}

// AppendKnowledgeSource appends path to the knowledge-source registry.
// Duplicates are kept: the registry is ingestion history, not a set.
func (s *Store) AppendKnowledgeSource(path string) error {
	return s.write(KeyKnowledgeSources, func(doc map[string]any) any {
		sources := toStringSlice(doc[KeyKnowledgeSources])
		out := make([]any, 0, len(sources)+1)
		for _, src := range sources {
			out = append(out, src)
		}
		return append(out, path)
	})
}

// ResetKnowledgeSources empties the registry.
func (s *Store) ResetKnowledgeSources() error {
	return s.write(KeyKnowledgeSources, func(map[string]any) any { return []any{} })
}

// Close shuts down the event broker.
func (s *Store) Close() {
	s.broker.Shutdown()
}

func (s *Store) write(key string, next func(doc map[string]any) any) error {
	s.mu.Lock()
	previous, had := s.doc[key]
	value := next(s.doc)
	s.doc[key] = value
	if err := s.persistLocked(); err != nil {
		if had {
			s.doc[key] = previous
		} else {
			delete(s.doc, key)
		}
		s.mu.Unlock()
		return err
	}
	watchers := make([]Watcher, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	change := Change{Key: key, Value: value, Previous: previous, Model: IsModelKey(key)}
	for _, w := range watchers {
		w(change)
	}

	s.broker.Publish(pubsub.UpdatedEvent, change)
	if change.Model {
		s.broker.Publish(pubsub.ModelChangedEvent, change)
	}
	return nil
}

// persistLocked writes the document atomically; the caller holds s.mu.
func (s *Store) persistLocked() error {
	data, err := sonic.ConfigStd.MarshalIndent(s.doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// normalize checks the value for keys with a constrained domain.
func normalize(key string, value any) (any, error) {
	switch key {
	case KeyTemperature:
		t, ok := toFloat(value)
		if !ok || t < 0 || t > 1 {
			return nil, fmt.Errorf("%w: %s must be a number between 0.0 and 1.0", ErrInvalidValue, key)
		}
		return t, nil
	case KeyTopK:
		k, ok := toFloat(value)
		if !ok || k < 1 {
			return nil, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidValue, key)
		}
		return float64(int(k)), nil
	case KeyRAG:
		mode, _ := value.(string)
		switch mode {
		case RAGEnabled, RAGDisabled, RAGBoth:
			return mode, nil
		}
		return nil, fmt.Errorf("%w: %s must be one of enabled, disabled, both", ErrInvalidValue, key)
	case KeyPromptTemplate:
		tpl, _ := value.(string)
		if !strings.Contains(tpl, "{context}") || !strings.Contains(tpl, "{input}") {
			return nil, fmt.Errorf("%w: %s must contain {context} and {input}", ErrInvalidValue, key)
		}
		return tpl, nil
	case KeyVectorstoreBackend:
		backend, _ := value.(string)
		if backend != BackendLocal && backend != BackendRedis {
			return nil, fmt.Errorf("%w: %s must be local or redis", ErrInvalidValue, key)
		}
		return backend, nil
	case KeyBaseModel, KeyEmbeddingModel, KeyVectorstoreDirectory:
		v, _ := value.(string)
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidValue, key)
		}
		return strings.TrimSpace(v), nil
	case KeyKnowledgeSources:
		list := toStringSlice(value)
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = v
		}
		return out, nil
	}
	return value, nil
}
