package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/eldtechnologies/chatmood/internal/dedup"
	"github.com/eldtechnologies/chatmood/internal/inference"
	"github.com/eldtechnologies/chatmood/internal/models"
	"github.com/eldtechnologies/chatmood/internal/parser"
	"github.com/eldtechnologies/chatmood/internal/store"
)

const happyReply = "SENTIMENT: Positive\nJUSTIFICATION: expresses enthusiasm\nEMOTIONS: joy\nURGENCY: low"

type fakeClassifier struct {
	calls int32
	reply string
	err   error
	panic bool
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.panic {
		panic("boom")
	}
	return f.reply, f.err
}

type failingStore struct{ calls int32 }

func (s *failingStore) SaveAnalysis(ctx context.Context, a *models.Analysis) (bool, error) {
	atomic.AddInt32(&s.calls, 1)
	return false, &store.PersistenceError{Op: "insert", Err: errors.New("connection refused")}
}

type brokenCache struct{}

func (brokenCache) SeenBefore(context.Context, string) (bool, error) {
	return false, errors.New("down")
}
func (brokenCache) MarkSeen(context.Context, string) error      { return errors.New("down") }
func (brokenCache) Claim(context.Context, string) (bool, error) { return false, errors.New("down") }

func newMemoryCache(t *testing.T) *dedup.MemoryCache {
	t.Helper()
	c, err := dedup.NewMemoryCache(100)
	require.NoError(t, err)
	return c
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func alice() models.InboundMessage {
	return models.InboundMessage{MessageID: "42", AuthorName: "Alice", Text: "I love this!"}
}

func TestHandle_StoresClassifiedMessage(t *testing.T) {
	db := newSQLite(t)
	classifier := &fakeClassifier{reply: happyReply}
	p := New(zerolog.Nop(), newMemoryCache(t), classifier, parser.NewLinePrefixParser(), db)

	outcome := p.Handle(context.Background(), alice())
	require.Equal(t, OutcomeStored, outcome)

	row, err := db.GetAnalysis(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Alice", row.UserName)
	assert.Equal(t, "I love this!", row.Message)
	assert.Equal(t, "Positive", row.Sentiment)
	assert.Equal(t, "expresses enthusiasm", row.Justification)
	assert.Equal(t, "joy", row.Emotion)
	assert.Equal(t, "low", row.Urgency)
	assert.False(t, row.IsReply)
	assert.Nil(t, row.RepliedToUser)
}

func TestHandle_DuplicateDeliveryStoresOnce(t *testing.T) {
	db := newSQLite(t)
	classifier := &fakeClassifier{reply: happyReply}
	var logs bytes.Buffer
	p := New(zerolog.New(&logs), newMemoryCache(t), classifier, parser.NewLinePrefixParser(), db)

	assert.Equal(t, OutcomeStored, p.Handle(context.Background(), alice()))
	assert.Equal(t, OutcomeDuplicate, p.Handle(context.Background(), alice()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&classifier.calls), "dedup short-circuits before classification")
	count, err := db.CountAnalyses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "already processed")
}

func TestHandle_MarkSeenShortCircuits(t *testing.T) {
	cache := newMemoryCache(t)
	require.NoError(t, cache.MarkSeen(context.Background(), "42"))
	classifier := &fakeClassifier{reply: happyReply}
	p := New(zerolog.Nop(), cache, classifier, parser.NewLinePrefixParser(), newSQLite(t))

	assert.Equal(t, OutcomeDuplicate, p.Handle(context.Background(), alice()))
	assert.Zero(t, atomic.LoadInt32(&classifier.calls))
}

func TestHandle_StoreBackstopsColdCache(t *testing.T) {
	db := newSQLite(t)
	classifier := &fakeClassifier{reply: happyReply}

	// Two processes with separate caches sharing one store.
	first := New(zerolog.Nop(), newMemoryCache(t), classifier, parser.NewLinePrefixParser(), db)
	second := New(zerolog.Nop(), newMemoryCache(t), classifier, parser.NewLinePrefixParser(), db)

	assert.Equal(t, OutcomeStored, first.Handle(context.Background(), alice()))
	assert.Equal(t, OutcomeDuplicate, second.Handle(context.Background(), alice()))

	count, err := db.CountAnalyses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestHandle_Reply(t *testing.T) {
	db := newSQLite(t)
	bob := "Bob"
	msg := models.InboundMessage{MessageID: "43", AuthorName: "Alice", Text: "so true", ReplyTo: &bob}
	p := New(zerolog.Nop(), newMemoryCache(t), &fakeClassifier{reply: happyReply}, parser.NewLinePrefixParser(), db)

	require.Equal(t, OutcomeStored, p.Handle(context.Background(), msg))

	row, err := db.GetAnalysis(context.Background(), "43")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.IsReply)
	require.NotNil(t, row.RepliedToUser)
	assert.Equal(t, "Bob", *row.RepliedToUser)
}

func TestHandle_RejectsEmptyText(t *testing.T) {
	classifier := &fakeClassifier{reply: happyReply}
	cache := newMemoryCache(t)
	p := New(zerolog.Nop(), cache, classifier, parser.NewLinePrefixParser(), newSQLite(t))

	assert.Equal(t, OutcomeRejected, p.Handle(context.Background(), models.InboundMessage{MessageID: "1", AuthorName: "A"}))
	assert.Equal(t, OutcomeRejected, p.Handle(context.Background(), models.InboundMessage{Text: "no id"}))
	assert.Zero(t, atomic.LoadInt32(&classifier.calls))
	assert.Zero(t, cache.Len(), "rejected messages are not marked")
}

func TestHandle_HTTP500NotRetriedNotStored(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	cfg := inference.DefaultConfig("key")
	cfg.URL = server.URL
	classifier := inference.NewClassifier(inference.NewHTTPClient(cfg), inference.DefaultRetryPolicy(), zerolog.Nop())

	db := newSQLite(t)
	var logs bytes.Buffer
	p := New(zerolog.New(&logs), newMemoryCache(t), classifier, parser.NewLinePrefixParser(), db)

	assert.Equal(t, OutcomeClassificationFailed, p.Handle(context.Background(), alice()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "no retry after an HTTP response")
	assert.Contains(t, logs.String(), `"status":500`)
	assert.Contains(t, logs.String(), `"message_id":"42"`)

	row, err := db.GetAnalysis(context.Background(), "42")
	if err == nil {
		assert.Nil(t, row)
	}
}

func TestHandle_EndToEndOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"text":%q}]}`, happyReply)
	}))
	defer server.Close()

	cfg := inference.DefaultConfig("key")
	cfg.URL = server.URL
	classifier := inference.NewClassifier(inference.NewHTTPClient(cfg), inference.DefaultRetryPolicy(), zerolog.Nop())

	db := newSQLite(t)
	p := New(zerolog.Nop(), newMemoryCache(t), classifier, parser.NewLinePrefixParser(), db)
	require.Equal(t, OutcomeStored, p.Handle(context.Background(), alice()))

	row, err := db.GetAnalysis(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Positive", row.Sentiment)
	assert.Equal(t, "joy", row.Emotion)
	assert.Equal(t, "low", row.Urgency)
}

func TestHandle_IncompleteClassification(t *testing.T) {
	db := newSQLite(t)
	p := New(zerolog.Nop(), newMemoryCache(t), &fakeClassifier{reply: "SENTIMENT: Positive"}, parser.NewLinePrefixParser(), db)

	assert.Equal(t, OutcomeIncomplete, p.Handle(context.Background(), alice()))
	count, err := db.CountAnalyses(context.Background())
	if err == nil {
		assert.Zero(t, count)
	}
}

func TestHandle_PersistenceFailureDoesNotStopNextMessage(t *testing.T) {
	st := &failingStore{}
	p := New(zerolog.Nop(), newMemoryCache(t), &fakeClassifier{reply: happyReply}, parser.NewLinePrefixParser(), st)

	assert.Equal(t, OutcomePersistenceFailed, p.Handle(context.Background(), alice()))
	next := alice()
	next.MessageID = "44"
	assert.Equal(t, OutcomePersistenceFailed, p.Handle(context.Background(), next))
	assert.Equal(t, int32(2), atomic.LoadInt32(&st.calls))
}

func TestHandle_CacheErrorFallsBackToStore(t *testing.T) {
	db := newSQLite(t)
	p := New(zerolog.Nop(), brokenCache{}, &fakeClassifier{reply: happyReply}, parser.NewLinePrefixParser(), db)

	assert.Equal(t, OutcomeStored, p.Handle(context.Background(), alice()))
	assert.Equal(t, OutcomeDuplicate, p.Handle(context.Background(), alice()))
}

func TestHandle_RecoversPanic(t *testing.T) {
	p := New(zerolog.Nop(), newMemoryCache(t), &fakeClassifier{panic: true}, parser.NewLinePrefixParser(), &failingStore{})
	assert.Equal(t, OutcomePanicked, p.Handle(context.Background(), alice()))
}

type countingStore struct {
	mu  sync.Mutex
	ids map[string]int
}

func (s *countingStore) SaveAnalysis(ctx context.Context, a *models.Analysis) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[a.MessageID]++
	return s.ids[a.MessageID] == 1, nil
}

func TestRun_ProcessesAllAndReturnsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := &countingStore{ids: make(map[string]int)}
	classifier := &fakeClassifier{reply: happyReply}
	p := New(zerolog.Nop(), newMemoryCache(t), classifier, parser.NewLinePrefixParser(), st).WithMaxConcurrency(4)

	messages := make(chan models.InboundMessage)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background(), messages) }()

	for i := 0; i < 20; i++ {
		messages <- models.InboundMessage{MessageID: fmt.Sprintf("m%d", i%10), AuthorName: "A", Text: "hi"}
	}
	close(messages)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}

	assert.Equal(t, int32(10), atomic.LoadInt32(&classifier.calls))
	assert.Len(t, st.ids, 10)
	for id, n := range st.ids {
		assert.Equal(t, 1, n, "message %s stored more than once", id)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := New(zerolog.Nop(), newMemoryCache(t), &fakeClassifier{reply: happyReply}, parser.NewLinePrefixParser(), &countingStore{ids: map[string]int{}})
	ctx, cancel := context.WithCancel(context.Background())
	messages := make(chan models.InboundMessage)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, messages) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
