package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSentenceStrategyValidation(t *testing.T) {
	_, err := NewSentenceStrategy(0, 0)
	assert.Error(t, err)
	_, err = NewSentenceStrategy(10, 10)
	assert.Error(t, err)
	_, err = NewSentenceStrategy(10, -1)
	assert.Error(t, err)
}

func TestSentenceStrategySingleChunk(t *testing.T) {
	s, err := NewSentenceStrategy(512, 50)
	require.NoError(t, err)

	chunks, err := Run(s, "The lake was calm. We caught two pike!", "doc-1", "alice", map[string]any{"title": "Trip"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, "The lake was calm. We caught two pike!", c.Text)
	assert.Equal(t, "doc-1", c.BackReference)
	assert.Equal(t, "alice", c.Metadata["owner_id"])
	assert.Equal(t, "doc-1", c.Metadata["document_id"])
	assert.Equal(t, "Trip", c.Metadata["title"])
	assert.NotEmpty(t, c.ID)
}

func TestSentenceStrategyWindowsWithOverlap(t *testing.T) {
	// five sentences of three words each
	content := "a b c. d e f. g h i. j k l. m n o."
	s, err := NewSentenceStrategy(6, 3)
	require.NoError(t, err)

	chunks, err := Run(s, content, "doc-1", "alice", nil)
	require.NoError(t, err)

	var texts []string
	for i, c := range chunks {
		texts = append(texts, c.Text)
		assert.Equal(t, i, c.Position)
		assert.LessOrEqual(t, len(strings.Fields(c.Text)), 6)
	}
	assert.Equal(t, []string{
		"a b c. d e f.",
		"d e f. g h i.",
		"g h i. j k l.",
		"j k l. m n o.",
	}, texts)
}

func TestSentenceStrategySplitsLongSentence(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = "w"
	}
	s, err := NewSentenceStrategy(10, 0)
	require.NoError(t, err)

	chunks, err := Run(s, strings.Join(words, " ")+".", "doc-1", "alice", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, strings.Fields(chunks[0].Text), 10)
	assert.Len(t, strings.Fields(chunks[1].Text), 10)
	assert.Len(t, strings.Fields(chunks[2].Text), 5)
}

func TestSentenceStrategyKeepsTrailingTextWithoutPunctuation(t *testing.T) {
	s, err := NewSentenceStrategy(512, 0)
	require.NoError(t, err)

	chunks, err := Run(s, "First sentence. trailing words", "doc-1", "alice", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "First sentence. trailing words", chunks[0].Text)
}

func TestSentenceStrategyEmptyContent(t *testing.T) {
	s, err := NewSentenceStrategy(512, 50)
	require.NoError(t, err)

	chunks, err := Run(s, "   \n ", "doc-1", "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
