package inference

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedBackend struct {
	results []error
	reply   string
	prompts []string
}

func (b *scriptedBackend) Complete(ctx context.Context, prompt string) (string, error) {
	b.prompts = append(b.prompts, prompt)
	i := len(b.prompts) - 1
	if i < len(b.results) && b.results[i] != nil {
		return "", b.results[i]
	}
	return b.reply, nil
}

func newTestClassifier(backend Completer) (*Classifier, *[]time.Duration) {
	c := NewClassifier(backend, DefaultRetryPolicy(), zerolog.Nop())
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func transportErr() error {
	return &TransportError{Err: errors.New("connection reset")}
}

func TestClassify_BackoffSchedule(t *testing.T) {
	backend := &scriptedBackend{results: []error{transportErr(), transportErr(), transportErr()}}
	c, delays := newTestClassifier(backend)

	_, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Len(t, backend.prompts, 3, "gives up after the third attempt")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestClassify_RecoversAfterTransportFailure(t *testing.T) {
	backend := &scriptedBackend{results: []error{transportErr()}, reply: "SENTIMENT: Positive"}
	c, delays := newTestClassifier(backend)

	raw, err := c.Classify(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "SENTIMENT: Positive", raw)
	assert.Len(t, backend.prompts, 2)
	assert.Equal(t, []time.Duration{time.Second}, *delays)
}

func TestClassify_NoRetryOnHTTPError(t *testing.T) {
	backend := &scriptedBackend{results: []error{&HTTPError{Status: 500, Body: "boom"}}}
	c, delays := newTestClassifier(backend)

	_, err := c.Classify(context.Background(), "hello")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.Status)
	assert.Len(t, backend.prompts, 1)
	assert.Empty(t, *delays)
}

func TestClassify_NoRetryOnMalformed(t *testing.T) {
	backend := &scriptedBackend{results: []error{&MalformedResponseError{Reason: "empty text"}}}
	c, _ := newTestClassifier(backend)

	_, err := c.Classify(context.Background(), "hello")
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Len(t, backend.prompts, 1)
}

func TestClassify_BuildsPrompt(t *testing.T) {
	backend := &scriptedBackend{reply: "ok"}
	c, _ := newTestClassifier(backend)

	_, err := c.Classify(context.Background(), "I love this!")
	require.NoError(t, err)
	require.Len(t, backend.prompts, 1)
	prompt := backend.prompts[0]
	for _, label := range []string{"SENTIMENT:", "JUSTIFICATION:", "EMOTIONS:", "URGENCY:"} {
		assert.Contains(t, prompt, label)
	}
	assert.True(t, strings.HasSuffix(prompt, "Analyze this message: I love this!"))
}

func TestClassify_EmptyText(t *testing.T) {
	backend := &scriptedBackend{}
	c, _ := newTestClassifier(backend)

	_, err := c.Classify(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Empty(t, backend.prompts)
}

func TestClassify_CancelledDuringBackoff(t *testing.T) {
	backend := &scriptedBackend{results: []error{transportErr(), transportErr(), transportErr()}}
	c := NewClassifier(backend, RetryPolicy{Attempts: 3, BaseDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Classify(ctx, "hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, backend.prompts, 1)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "transport", Kind(transportErr()))
	assert.Equal(t, "http", Kind(&HTTPError{Status: 404}))
	assert.Equal(t, "malformed", Kind(&MalformedResponseError{Reason: "x"}))
	assert.Equal(t, "other", Kind(errors.New("x")))
}
