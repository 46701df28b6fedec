package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pedjoni/idiorag/internal/domain"
	"github.com/pedjoni/idiorag/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRetriever struct {
	matches []domain.RetrievedMatch
	err     error
	gotK    int
}

func (r *fakeRetriever) Retrieve(_ context.Context, ownerID, _ string, k int) ([]domain.RetrievedMatch, error) {
	r.gotK = k
	if r.err != nil {
		return nil, r.err
	}
	out := make([]domain.RetrievedMatch, 0, len(r.matches))
	for _, m := range r.matches {
		if m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeCounter struct {
	n   int
	err error
}

func (c fakeCounter) CountByOwner(context.Context, string) (int, error) { return c.n, c.err }

// fakeCompleter answers with text, streaming it in pieces of the given sizes.
type fakeCompleter struct {
	mu        sync.Mutex
	text      string
	pieces    []string
	err       error
	streamErr error
	midErr    error
	block     bool
	prompt    string
	opts      llm.Options
}

func (c *fakeCompleter) record(prompt string, opts llm.Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt, c.opts = prompt, opts
}

func (c *fakeCompleter) Complete(_ context.Context, prompt string, opts llm.Options) (string, error) {
	c.record(prompt, opts)
	return c.text, c.err
}

func (c *fakeCompleter) StreamComplete(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.Delta, error) {
	c.record(prompt, opts)
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		for _, p := range c.pieces {
			select {
			case ch <- llm.Delta{Text: p}:
			case <-ctx.Done():
				return
			}
		}
		if c.midErr != nil {
			select {
			case ch <- llm.Delta{Err: c.midErr}:
			case <-ctx.Done():
			}
			return
		}
		if c.block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func splitEvery(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

var testMatches = []domain.RetrievedMatch{
	{Text: "Muskie hit topwater at dawn.", OwnerID: "alice", DocumentID: "d1", Score: 0.9},
	{Text: "Weed edges held fish.", OwnerID: "alice", DocumentID: "d1", Score: 0.7},
	{Text: "Follows on bucktails.", OwnerID: "alice", DocumentID: "d2", Score: 0.5},
	{Text: "Bob's secret spot.", OwnerID: "bob", DocumentID: "d3", Score: 0.99},
}

func newOrchestrator(t *testing.T, r Retriever, c llm.Completer) *QueryOrchestrator {
	return NewQueryOrchestrator(r, fakeCounter{n: 4}, c, QueryConfig{
		DefaultTopK: 5,
		MaxTopK:     20,
		DefaultMode: domain.ModeDirect,
		Temperature: 0.7,
		MaxTokens:   2048,
		Stop:        []string{"\n\nOkay,"},
	}, zaptest.NewLogger(t))
}

func collect(t *testing.T, ch <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not close")
			return nil
		}
	}
}

func assertWellFormed(t *testing.T, events []domain.StreamEvent) {
	t.Helper()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventContext, events[0].Type)
	assert.True(t, events[len(events)-1].IsTerminal())
	for i, ev := range events {
		if i > 0 {
			assert.NotEqual(t, domain.EventContext, ev.Type, "context event at %d", i)
		}
		if i < len(events)-1 {
			assert.False(t, ev.IsTerminal(), "terminal event at %d", i)
		}
	}
}

func TestQueryDirect(t *testing.T) {
	r := &fakeRetriever{matches: testMatches}
	c := &fakeCompleter{text: "  Use topwater at dawn.  "}
	o := newOrchestrator(t, r, c)

	resp, err := o.Query(context.Background(), &domain.QueryRequest{OwnerID: "alice", Query: "What works?"})
	require.NoError(t, err)
	assert.Equal(t, "Use topwater at dawn.", resp.Answer)
	assert.Empty(t, resp.Reasoning)
	assert.Len(t, resp.Context, 3)
	for _, m := range resp.Context {
		assert.Equal(t, "alice", m.OwnerID)
	}

	require.NotNil(t, resp.Metadata)
	assert.Equal(t, 4, resp.Metadata.TotalDocumentsForOwner)
	assert.Equal(t, 2, resp.Metadata.DocumentsRetrieved)
	assert.Equal(t, 3, resp.Metadata.ChunksRetrieved)
	assert.InDelta(t, 0.7, resp.Metadata.AverageSimilarity, 1e-9)

	assert.Equal(t, 5, r.gotK)
	assert.Equal(t, []string{"\n\nOkay,"}, c.opts.Stop)
	assert.Equal(t, 0.7, c.opts.Temperature)
	assert.Equal(t, 2048, c.opts.MaxTokens)
	assert.Contains(t, c.prompt, "Muskie hit topwater at dawn.")
	assert.NotContains(t, c.prompt, "Bob's secret spot.")
}

func TestQueryChainOfThought(t *testing.T) {
	c := &fakeCompleter{text: "<thinking>Dawn catches dominate.</thinking>\n<answer>Fish topwater at dawn.</answer>"}
	o := newOrchestrator(t, &fakeRetriever{matches: testMatches}, c)
	temp := 0.2

	resp, err := o.Query(context.Background(), &domain.QueryRequest{
		OwnerID: "alice", Query: "When?", UseCoT: true, Temperature: &temp, MaxTokens: 100, TopK: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dawn catches dominate.", resp.Reasoning)
	assert.Equal(t, "Fish topwater at dawn.", resp.Answer)
	assert.Nil(t, c.opts.Stop)
	assert.Equal(t, 0.2, c.opts.Temperature)
	assert.Equal(t, 100, c.opts.MaxTokens)
	assert.Contains(t, c.prompt, domain.MarkerReasoningStart)
}

func TestQueryTopKClamped(t *testing.T) {
	r := &fakeRetriever{}
	o := newOrchestrator(t, r, &fakeCompleter{})
	_, err := o.Query(context.Background(), &domain.QueryRequest{OwnerID: "alice", Query: "q", TopK: 50})
	require.NoError(t, err)
	assert.Equal(t, 20, r.gotK)
}

func TestQueryFailuresBecomeAnswers(t *testing.T) {
	tests := []struct {
		name    string
		r       *fakeRetriever
		c       *fakeCompleter
		contain string
	}{
		{"retrieval", &fakeRetriever{err: domain.ErrRetrievalFailed}, &fakeCompleter{}, "retrieval failed"},
		{"completion", &fakeRetriever{matches: testMatches}, &fakeCompleter{err: errors.New("model overloaded")}, "model overloaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, tt.r, tt.c)
			resp, err := o.Query(context.Background(), &domain.QueryRequest{OwnerID: "alice", Query: "q"})
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(resp.Answer, "Error processing query: "))
			assert.Contains(t, resp.Answer, tt.contain)
			assert.NotNil(t, resp.Context)
			assert.Empty(t, resp.Context)
		})
	}
}

func TestQueryValidation(t *testing.T) {
	neg := -1.0
	hot := 2.5
	tests := []struct {
		name string
		req  domain.QueryRequest
		want error
	}{
		{"no owner", domain.QueryRequest{Query: "q"}, domain.ErrUnauthorized},
		{"blank query", domain.QueryRequest{OwnerID: "a", Query: "  "}, domain.ErrInvalidRequest},
		{"long query", domain.QueryRequest{OwnerID: "a", Query: strings.Repeat("é", MaxQueryLength+1)}, domain.ErrInvalidRequest},
		{"negative top_k", domain.QueryRequest{OwnerID: "a", Query: "q", TopK: -1}, domain.ErrInvalidRequest},
		{"unknown mode", domain.QueryRequest{OwnerID: "a", Query: "q", Mode: "poetry"}, domain.ErrInvalidRequest},
		{"negative temperature", domain.QueryRequest{OwnerID: "a", Query: "q", Temperature: &neg}, domain.ErrInvalidRequest},
		{"hot temperature", domain.QueryRequest{OwnerID: "a", Query: "q", Temperature: &hot}, domain.ErrInvalidRequest},
		{"too many tokens", domain.QueryRequest{OwnerID: "a", Query: "q", MaxTokens: MaxTokensLimit + 1}, domain.ErrInvalidRequest},
	}
	o := newOrchestrator(t, &fakeRetriever{}, &fakeCompleter{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Query(context.Background(), &tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			_, err = o.QueryStream(context.Background(), &tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	// exactly MaxQueryLength characters is accepted
	_, err := o.Query(context.Background(), &domain.QueryRequest{OwnerID: "a", Query: strings.Repeat("é", MaxQueryLength)})
	assert.NoError(t, err)
}

func TestQueryStreamChainOfThought(t *testing.T) {
	const output = "<thinking>The log shows two dawn catches.</thinking>\n<answer>Fish at dawn.</answer>"
	for _, size := range []int{1, 3, 7, len(output)} {
		c := &fakeCompleter{pieces: splitEvery(output, size)}
		o := newOrchestrator(t, &fakeRetriever{matches: testMatches}, c)

		ch, err := o.QueryStream(context.Background(), &domain.QueryRequest{OwnerID: "alice", Query: "q", Mode: domain.ModeChainOfThought})
		require.NoError(t, err)
		events := collect(t, ch)
		assertWellFormed(t, events)

		assert.Len(t, events[0].Chunks, 3)
		require.NotNil(t, events[0].Metadata)
		assert.Equal(t, 3, events[0].Metadata.ChunksRetrieved)
		assert.Equal(t, domain.EventDone, events[len(events)-1].Type)

		var thinking, answer, tokens strings.Builder
		for _, ev := range events[1 : len(events)-1] {
			assert.NotEmpty(t, ev.Content)
			switch ev.Type {
			case domain.EventThinking:
				thinking.WriteString(ev.Content)
			case domain.EventAnswer:
				answer.WriteString(ev.Content)
			case domain.EventToken:
				tokens.WriteString(ev.Content)
			}
		}
		assert.Equal(t, "The log shows two dawn catches.", thinking.String(), "piece size %d", size)
		assert.Equal(t, "Fish at dawn.", answer.String(), "piece size %d", size)
		assert.Equal(t, "\n", tokens.String(), "piece size %d", size)
		assert.Nil(t, c.opts.Stop)
	}
}

func TestQueryStreamDirectEmitsTokens(t *testing.T) {
	c := &fakeCompleter{pieces: []string{"Fish ", "at ", "dawn."}}
	o := newOrchestrator(t, &fakeRetriever{matches: testMatches}, c)

	ch, err := o.QueryStream(context.Background(), &domain.QueryRequest{OwnerID: "alice", Query: "q"})
	require.NoError(t, err)
	events := collect(t, ch)
	assertWellFormed(t, events)

	var text strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, domain.EventToken, ev.Type)
		text.WriteString(ev.Content)
	}
	assert.Equal(t, "Fish at dawn.", text.String())
	assert.Equal(t, []string{"\n\nOkay,"}, c.opts.Stop)
}

func TestQueryStreamRetrievalFailure(t *testing.T) {
	o := newOrchestrator(t, &fakeRetriever{err: domain.ErrRetrievalFailed}, &fakeCompleter{})

	ch, err := o.QueryStream(context.Background(), &domain.QueryRequest{OwnerID: "alice", Query: "q"})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 2)
	assertWellFormed(t, events)
	assert.NotNil(t, events[0].Chunks)
	assert.Empty(t, events[0].Chunks)
	assert.Equal(t, domain.EventError, events[1].Type)
	assert.Contains(t, events[1].Message, "retrieval failed")
}

func TestQueryStreamCompletionFailures(t *testing.T) {
	tests := []struct {
		name string
		c    *fakeCompleter
	}{
		{"before first token", &fakeCompleter{streamErr: errors.New("connection refused")}},
		{"mid stream", &fakeCompleter{pieces: []string{"<thinking>hm"}, midErr: errors.New("connection reset")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, &fakeRetriever{matches: testMatches}, tt.c)
			ch, err := o.QueryStream(context.Background(), &domain.QueryRequest{OwnerID: "alice", Query: "q"})
			require.NoError(t, err)

			events := collect(t, ch)
			assertWellFormed(t, events)
			last := events[len(events)-1]
			assert.Equal(t, domain.EventError, last.Type)
			assert.Contains(t, last.Message, domain.ErrCompletionFailed.Error())
		})
	}
}

func TestQueryStreamCancellation(t *testing.T) {
	c := &fakeCompleter{pieces: []string{"Fish "}, block: true}
	o := newOrchestrator(t, &fakeRetriever{matches: testMatches}, c)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := o.QueryStream(ctx, &domain.QueryRequest{OwnerID: "alice", Query: "q"})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, domain.EventContext, first.Type)
	cancel()

	for _, ev := range collect(t, ch) {
		assert.False(t, ev.IsTerminal(), "unexpected %s after cancel", ev.Type)
	}
}

func TestSplitSections(t *testing.T) {
	tests := []struct {
		in, reasoning, answer string
	}{
		{"<thinking>a</thinking><answer>b</answer>", "a", "b"},
		{"no markers at all", "", "no markers at all"},
		{"<thinking>only thoughts", "only thoughts", ""},
		{"<answer> b </answer> trailing", "", "b"},
	}
	for _, tt := range tests {
		r, a := splitSections(tt.in)
		assert.Equal(t, tt.reasoning, r, tt.in)
		assert.Equal(t, tt.answer, a, tt.in)
	}
}
