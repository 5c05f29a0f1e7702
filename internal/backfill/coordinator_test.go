package backfill

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixline/recall/internal/extraction"
	"github.com/helixline/recall/internal/vectorstore"
)

// memStore is an in-memory Store.
type memStore struct {
	mu    sync.Mutex
	items []vectorstore.Item
}

func (s *memStore) GetAll(_ context.Context) ([]vectorstore.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vectorstore.Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *memStore) Update(_ context.Context, id string, meta vectorstore.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Metadata = meta
			return nil
		}
	}
	return vectorstore.ErrNotFound
}

func (s *memStore) get(id string) vectorstore.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			return it
		}
	}
	return vectorstore.Item{}
}

// stubExtractor succeeds unless the text matches failOn. It tracks the
// maximum number of concurrent Extract calls.
type stubExtractor struct {
	failOn func(text string) bool

	calls     int32
	inFlight  int32
	maxActive int32

	mu    sync.Mutex
	texts []string
}

func (e *stubExtractor) Extract(_ context.Context, text, imagePath string, maxAttempts int) extraction.Result {
	atomic.AddInt32(&e.calls, 1)
	active := atomic.AddInt32(&e.inFlight, 1)
	for {
		max := atomic.LoadInt32(&e.maxActive)
		if active <= max || atomic.CompareAndSwapInt32(&e.maxActive, max, active) {
			break
		}
	}
	defer atomic.AddInt32(&e.inFlight, -1)

	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()

	if e.failOn != nil && e.failOn(text) {
		return extraction.Result{Marker: &extraction.ErrorMarker{Attempts: maxAttempts, LastCause: "stub failure"}}
	}
	return extraction.Result{Record: &extraction.Record{
		ModelName:          "M",
		PrimaryTask:        "t",
		KeyContribution:    "k",
		DatasetsUsed:       []string{"d"},
		EvaluationMetrics:  []string{"m"},
		OneSentenceSummary: "s",
	}}
}

func (e *stubExtractor) MaxAttempts() int { return 3 }

func textItem(id, content string) vectorstore.Item {
	return vectorstore.Item{
		ID: id,
		Metadata: vectorstore.Metadata{
			Type:    vectorstore.TypeText,
			Title:   id,
			Content: content,
		},
	}
}

func TestRunMixedOutcomes(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		content := "good " + id
		if i < 3 {
			content = "bad " + id
		}
		store.items = append(store.items, textItem(id, content))
	}
	ext := &stubExtractor{failOn: func(text string) bool {
		return strings.HasPrefix(text, "bad")
	}}

	summary, err := New(store, ext, nil).Run(context.Background(), false, 4)
	require.NoError(t, err)
	assert.Equal(t, Summary{Selected: 10, Updated: 7, Failed: 3}, summary)

	// Failed items are untouched so a later run retries them.
	assert.Empty(t, store.get("a").ExtractedInfo)
	assert.True(t, extraction.ValidInfo(store.get("d").ExtractedInfo))
}

func TestRunSecondPassRetriesOnlyFailures(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		content := "good " + id
		if i < 3 {
			content = "bad " + id
		}
		store.items = append(store.items, textItem(id, content))
	}
	ext := &stubExtractor{failOn: func(text string) bool {
		return strings.HasPrefix(text, "bad")
	}}
	coordinator := New(store, ext, nil)

	_, err := coordinator.Run(context.Background(), false, 4)
	require.NoError(t, err)

	// The transient condition clears; only the 3 failures are reselected.
	ext.failOn = nil
	atomic.StoreInt32(&ext.calls, 0)

	summary, err := coordinator.Run(context.Background(), false, 4)
	require.NoError(t, err)
	assert.Equal(t, Summary{Selected: 3, Updated: 3, Failed: 0}, summary)
	assert.EqualValues(t, 3, atomic.LoadInt32(&ext.calls))
}

func TestRunForceRefreshSelectsEverything(t *testing.T) {
	store := &memStore{items: []vectorstore.Item{textItem("a", "x"), textItem("b", "y")}}
	ext := &stubExtractor{}
	coordinator := New(store, ext, nil)

	_, err := coordinator.Run(context.Background(), false, 2)
	require.NoError(t, err)

	summary, err := coordinator.Run(context.Background(), true, 2)
	require.NoError(t, err)
	assert.Equal(t, Summary{Selected: 2, Updated: 2, Failed: 0}, summary)
}

func TestRunWorkerCountEquivalence(t *testing.T) {
	run := func(workers int) Summary {
		store := &memStore{}
		for i := 0; i < 20; i++ {
			id := string(rune('a' + i))
			store.items = append(store.items, textItem(id, "content "+id))
		}
		summary, err := New(store, &stubExtractor{}, nil).Run(context.Background(), false, workers)
		require.NoError(t, err)
		for _, it := range store.items {
			assert.True(t, extraction.ValidInfo(store.get(it.ID).ExtractedInfo))
		}
		return summary
	}

	assert.Equal(t, run(1), run(8), "worker count must not change outcomes")
}

func TestRunBoundsConcurrency(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 30; i++ {
		id := string(rune('a' + i))
		store.items = append(store.items, textItem(id, "content "+id))
	}
	ext := &stubExtractor{}

	_, err := New(store, ext, nil).Run(context.Background(), false, 4)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&ext.maxActive), int32(4))
}

func TestRunRejectsInvalidWorkerCount(t *testing.T) {
	_, err := New(&memStore{}, &stubExtractor{}, nil).Run(context.Background(), false, 0)
	require.Error(t, err)
}

func TestRunNothingSelected(t *testing.T) {
	store := &memStore{items: []vectorstore.Item{textItem("a", "x")}}
	ext := &stubExtractor{}
	coordinator := New(store, ext, nil)

	_, err := coordinator.Run(context.Background(), false, 2)
	require.NoError(t, err)

	summary, err := coordinator.Run(context.Background(), false, 2)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ext.calls))
}

func TestExtractionInput(t *testing.T) {
	c := New(&memStore{}, &stubExtractor{}, nil)
	c.fileExists = func(path string) bool { return path == "/imgs/cat.png" }

	tests := []struct {
		name      string
		item      vectorstore.Item
		wantText  string
		wantImage string
	}{
		{
			name:     "text item uses content",
			item:     textItem("a", "an abstract"),
			wantText: "an abstract",
		},
		{
			name: "image item uses title and path",
			item: vectorstore.Item{Metadata: vectorstore.Metadata{
				Type: vectorstore.TypeImage, Title: "cat", Content: "/imgs/cat.png",
			}},
			wantText:  "cat",
			wantImage: "/imgs/cat.png",
		},
		{
			name: "image-text splits composite content",
			item: vectorstore.Item{Metadata: vectorstore.Metadata{
				Type: vectorstore.TypeImageText, Title: "cat", Content: "a cat | /imgs/cat.png",
			}},
			wantText:  "a cat",
			wantImage: "/imgs/cat.png",
		},
		{
			name: "image-text drops missing image",
			item: vectorstore.Item{Metadata: vectorstore.Metadata{
				Type: vectorstore.TypeImageText, Title: "dog", Content: "a dog | /imgs/dog.png",
			}},
			wantText: "a dog",
		},
		{
			name: "image-text without delimiter falls back to title",
			item: vectorstore.Item{Metadata: vectorstore.Metadata{
				Type: vectorstore.TypeImageText, Title: "fallback", Content: "no delimiter here",
			}},
			wantText: "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, imagePath := c.extractionInput(tt.item)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantImage, imagePath)
		})
	}
}
