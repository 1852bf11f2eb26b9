// Package pipeline drives each inbound chat message through deduplication,
// classification, parsing and storage.
package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/chatmood/internal/dedup"
	"github.com/eldtechnologies/chatmood/internal/inference"
	"github.com/eldtechnologies/chatmood/internal/metrics"
	"github.com/eldtechnologies/chatmood/internal/models"
	"github.com/eldtechnologies/chatmood/internal/parser"
)

// Outcome is the terminal state of one pipeline invocation.
type Outcome string

const (
	OutcomeStored               Outcome = "stored"
	OutcomeDuplicate            Outcome = "duplicate"
	OutcomeRejected             Outcome = "rejected"
	OutcomeClassificationFailed Outcome = "classification_failed"
	OutcomeIncomplete           Outcome = "incomplete"
	OutcomePersistenceFailed    Outcome = "persistence_failed"
	OutcomePanicked             Outcome = "panicked"
)

// DefaultMaxConcurrency bounds in-flight invocations in Run.
const DefaultMaxConcurrency = 16

// Classifier returns the raw model reply for a message text.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// Store persists analyses; false means the message id was already stored.
type Store interface {
	SaveAnalysis(ctx context.Context, a *models.Analysis) (bool, error)
}

// Pipeline holds everything one invocation needs. It is safe for
// concurrent use; the dedup cache is the only shared mutable state.
type Pipeline struct {
	cache          dedup.Cache
	classifier     Classifier
	parser         parser.Parser
	store          Store
	logger         zerolog.Logger
	maxConcurrency int
}

// New creates a Pipeline.
func New(logger zerolog.Logger, cache dedup.Cache, classifier Classifier, p parser.Parser, st Store) *Pipeline {
	return &Pipeline{
		cache:          cache,
		classifier:     classifier,
		parser:         p,
		store:          st,
		logger:         logger,
		maxConcurrency: DefaultMaxConcurrency,
	}
}

// WithMaxConcurrency sets how many messages Run processes at once.
func (p *Pipeline) WithMaxConcurrency(n int) *Pipeline {
	if n > 0 {
		p.maxConcurrency = n
	}
	return p
}

// Run handles every message received on messages, one goroutine each, until
// the channel is closed or ctx is done. It waits for in-flight invocations.
func (p *Pipeline) Run(ctx context.Context, messages <-chan models.InboundMessage) error {
	var g errgroup.Group
	g.SetLimit(p.maxConcurrency)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				p.Handle(ctx, msg)
				return nil
			})
		}
	}
}

// Handle runs one message to a terminal state. Failures are logged with the
// message id and reported as an Outcome; Handle never panics.
func (p *Pipeline) Handle(ctx context.Context, msg models.InboundMessage) (outcome Outcome) {
	logger := p.logger.With().
		Str("message_id", msg.MessageID).
		Str("trace_id", ulid.Make().String()).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("pipeline invocation panicked")
			outcome = OutcomePanicked
		}
		metrics.MessagesProcessed.WithLabelValues(string(outcome)).Inc()
	}()

	if msg.MessageID == "" || strings.TrimSpace(msg.Text) == "" {
		logger.Warn().Msg("received a message without id or text; skipping")
		return OutcomeRejected
	}

	claimed, err := p.cache.Claim(ctx, msg.MessageID)
	switch {
	case err != nil:
		// The store's unique key still prevents a second row.
		logger.Error().Err(err).Msg("dedup cache unavailable; continuing")
	case !claimed:
		metrics.DedupHits.Inc()
		logger.Warn().Msg("message already processed; skipping")
		return OutcomeDuplicate
	}

	if msg.IsReply() {
		logger.Info().Str("replied_to_user", *msg.ReplyTo).Msg("reply detected")
	}
	logger.Info().Str("user_name", msg.AuthorName).Str("text", msg.Text).Msg("message received")

	raw, err := p.classifier.Classify(ctx, msg.Text)
	if err != nil {
		logClassificationError(&logger, err)
		return OutcomeClassificationFailed
	}

	c, err := p.parser.Parse(raw)
	if err != nil {
		logger.Error().Err(err).Str("raw", raw).Msg("could not parse classification")
		return OutcomeIncomplete
	}
	logger.Info().
		Str("sentiment", c.Sentiment).
		Str("justification", c.Justification).
		Str("emotion", c.Emotion).
		Str("urgency", c.Urgency).
		Msg("message classified")

	inserted, err := p.store.SaveAnalysis(ctx, models.NewAnalysis(msg, *c))
	if err != nil {
		logger.Error().Err(err).Msg("database error; message dropped")
		return OutcomePersistenceFailed
	}
	if !inserted {
		logger.Warn().Msg("duplicate message; skipping database insert")
		return OutcomeDuplicate
	}

	logger.Info().Msg("message stored")
	return OutcomeStored
}

func logClassificationError(logger *zerolog.Logger, err error) {
	var httpErr *inference.HTTPError
	event := logger.Error().Err(err).Str("kind", inference.Kind(err))
	if errors.As(err, &httpErr) {
		event = event.Int("status", httpErr.Status).Str("body", httpErr.Body)
	}
	event.Msg("classification failed; message dropped")
}
