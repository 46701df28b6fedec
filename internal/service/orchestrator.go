package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/pedjoni/idiorag/internal/llm"
	"github.com/pedjoni/idiorag/internal/prompt"
	"github.com/pedjoni/idiorag/internal/stream"
	"go.uber.org/zap"
)

// Request limits
const (
	MaxQueryLength = 2000
	MaxTokensLimit = 4096
	MaxTemperature = 2.0
)

// QueryConfig holds query defaults.
type QueryConfig struct {
	DefaultTopK int
	MaxTopK     int
	DefaultMode string
	Temperature float64
	MaxTokens   int
	// Stop is applied in direct mode only; chain-of-thought output needs
	// its reasoning section intact.
	Stop []string
}

// DocumentCounter reports how many documents an owner has.
type DocumentCounter interface {
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

// QueryOrchestrator answers questions from the caller's own documents
type QueryOrchestrator struct {
	retriever Retriever
	counter   DocumentCounter
	composer  prompt.Composer
	completer llm.Completer
	cfg       QueryConfig
	logger    *zap.Logger
}

// NewQueryOrchestrator creates a new query orchestrator
func NewQueryOrchestrator(
	retriever Retriever,
	counter DocumentCounter,
	completer llm.Completer,
	cfg QueryConfig,
	logger *zap.Logger,
) *QueryOrchestrator {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.MaxTopK < cfg.DefaultTopK {
		cfg.MaxTopK = cfg.DefaultTopK
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = domain.ModeDirect
	}
	return &QueryOrchestrator{
		retriever: retriever,
		counter:   counter,
		completer: completer,
		cfg:       cfg,
		logger:    logger,
	}
}

type queryPlan struct {
	topK int
	mode string
	opts llm.Options
}

// plan validates req and fills in defaults.
func (o *QueryOrchestrator) plan(req *domain.QueryRequest) (queryPlan, error) {
	if req.OwnerID == "" {
		return queryPlan{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(req.Query) == "" {
		return queryPlan{}, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Query) > MaxQueryLength {
		return queryPlan{}, fmt.Errorf("%w: query exceeds %d characters", domain.ErrInvalidRequest, MaxQueryLength)
	}

	p := queryPlan{
		topK: req.TopK,
		mode: req.Mode,
		opts: llm.Options{Temperature: o.cfg.Temperature, MaxTokens: o.cfg.MaxTokens},
	}

	switch {
	case p.topK < 0:
		return queryPlan{}, fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidRequest)
	case p.topK == 0:
		p.topK = o.cfg.DefaultTopK
	case p.topK > o.cfg.MaxTopK:
		p.topK = o.cfg.MaxTopK
	}

	if p.mode == "" {
		p.mode = o.cfg.DefaultMode
		if req.UseCoT {
			p.mode = domain.ModeChainOfThought
		}
	}
	switch p.mode {
	case domain.ModeDirect:
		p.opts.Stop = o.cfg.Stop
	case domain.ModeChainOfThought:
	default:
		return queryPlan{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidRequest, p.mode)
	}

	if req.Temperature != nil {
		t := *req.Temperature
		if t < 0 || t > MaxTemperature {
			return queryPlan{}, fmt.Errorf("%w: temperature must be in [0, %g]", domain.ErrInvalidRequest, MaxTemperature)
		}
		p.opts.Temperature = t
	}
	if req.MaxTokens != 0 {
		if req.MaxTokens < 0 || req.MaxTokens > MaxTokensLimit {
			return queryPlan{}, fmt.Errorf("%w: max_tokens must be in [1, %d]", domain.ErrInvalidRequest, MaxTokensLimit)
		}
		p.opts.MaxTokens = req.MaxTokens
	}
	return p, nil
}

// Query answers req in one call. Invalid requests return an error; failures
// after validation are reported in the answer text with empty context.
func (o *QueryOrchestrator) Query(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error) {
	p, err := o.plan(req)
	if err != nil {
		return nil, err
	}

	matches, err := o.retriever.Retrieve(ctx, req.OwnerID, req.Query, p.topK)
	if err != nil {
		return o.failed(req, err), nil
	}
	meta := o.metadata(ctx, req.OwnerID, matches)

	text, err := o.completer.Complete(ctx, o.composer.Compose(p.mode, req.Query, matches), p.opts)
	if err != nil {
		return o.failed(req, fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err)), nil
	}

	resp := &domain.QueryResponse{
		Query:    req.Query,
		Answer:   strings.TrimSpace(text),
		Context:  matches,
		Metadata: meta,
	}
	if p.mode == domain.ModeChainOfThought {
		resp.Reasoning, resp.Answer = splitSections(text)
	}

	o.logger.Info("Query answered",
		zap.String("owner_id", req.OwnerID),
		zap.String("mode", p.mode),
		zap.Int("chunks", meta.ChunksRetrieved))
	return resp, nil
}

func (o *QueryOrchestrator) failed(req *domain.QueryRequest, err error) *domain.QueryResponse {
	o.logger.Error("Query failed", zap.String("owner_id", req.OwnerID), zap.Error(err))
	return &domain.QueryResponse{
		Query:   req.Query,
		Answer:  "Error processing query: " + err.Error(),
		Context: []domain.RetrievedMatch{},
	}
}

// QueryStream answers req as a stream of events: one context event, then
// reasoning, answer or token deltas, then exactly one done or error event.
// If ctx is cancelled the channel is closed without a terminal event.
func (o *QueryOrchestrator) QueryStream(ctx context.Context, req *domain.QueryRequest) (<-chan domain.StreamEvent, error) {
	p, err := o.plan(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.StreamEvent, 16)
	go func() {
		defer close(ch)

		send := func(ev domain.StreamEvent) bool {
			if ctx.Err() != nil {
				return false
			}
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		fail := func(err error) {
			o.logger.Error("Query stream failed", zap.String("owner_id", req.OwnerID), zap.Error(err))
			send(domain.StreamEvent{Type: domain.EventError, Message: err.Error()})
		}

		matches, err := o.retriever.Retrieve(ctx, req.OwnerID, req.Query, p.topK)
		if err != nil {
			if send(domain.StreamEvent{Type: domain.EventContext, Chunks: []domain.RetrievedMatch{}}) {
				fail(err)
			}
			return
		}
		meta := o.metadata(ctx, req.OwnerID, matches)
		if !send(domain.StreamEvent{Type: domain.EventContext, Chunks: matches, Metadata: meta}) {
			return
		}

		deltas, err := o.completer.StreamComplete(ctx, o.composer.Compose(p.mode, req.Query, matches), p.opts)
		if err != nil {
			fail(fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err))
			return
		}

		var parser stream.Parser
		for d := range deltas {
			if d.Err != nil {
				if ctx.Err() != nil {
					return
				}
				fail(fmt.Errorf("%w: %w", domain.ErrCompletionFailed, d.Err))
				return
			}
			for _, pd := range parser.Feed(d.Text) {
				if !send(domain.StreamEvent{Type: pd.Kind.EventType(), Content: pd.Text}) {
					return
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		for _, pd := range parser.Flush() {
			if !send(domain.StreamEvent{Type: pd.Kind.EventType(), Content: pd.Text}) {
				return
			}
		}
		send(domain.StreamEvent{Type: domain.EventDone})
	}()

	return ch, nil
}

// metadata summarizes matches. A failed document count is logged and reported as 0.
func (o *QueryOrchestrator) metadata(ctx context.Context, ownerID string, matches []domain.RetrievedMatch) *domain.RetrievalMetadata {
	total, err := o.counter.CountByOwner(ctx, ownerID)
	if err != nil {
		o.logger.Warn("Failed to count documents", zap.String("owner_id", ownerID), zap.Error(err))
	}

	docs := make(map[string]struct{}, len(matches))
	var sum float64
	for _, m := range matches {
		docs[m.DocumentID] = struct{}{}
		sum += m.Score
	}
	meta := &domain.RetrievalMetadata{
		TotalDocumentsForOwner: total,
		DocumentsRetrieved:     len(docs),
		ChunksRetrieved:        len(matches),
	}
	if len(matches) > 0 {
		meta.AverageSimilarity = sum / float64(len(matches))
	}
	return meta
}

// splitSections separates a complete chain-of-thought response into its
// reasoning and answer. Without an answer section the unmarked text is the
// answer.
func splitSections(text string) (reasoning, answer string) {
	var (
		p                stream.Parser
		rb, ab, unmarked strings.Builder
	)
	for _, d := range append(p.Feed(text), p.Flush()...) {
		switch d.Kind {
		case stream.Reasoning:
			rb.WriteString(d.Text)
		case stream.Answer:
			ab.WriteString(d.Text)
		default:
			unmarked.WriteString(d.Text)
		}
	}
	answer = strings.TrimSpace(ab.String())
	if answer == "" {
		answer = strings.TrimSpace(unmarked.String())
	}
	return strings.TrimSpace(rb.String()), answer
}
