// Package stream splits streamed model output into reasoning, answer and
// unstructured deltas.
package stream

import (
	"strings"
	"unicode/utf8"

	"github.com/pedjoni/idiorag/internal/domain"
)

// Kind classifies a delta.
type Kind int

const (
	Unstructured Kind = iota
	Reasoning
	Answer
)

// EventType returns the stream event type for k.
func (k Kind) EventType() string {
	switch k {
	case Reasoning:
		return domain.EventThinking
	case Answer:
		return domain.EventAnswer
	default:
		return domain.EventToken
	}
}

// Delta is a piece of classified text. Text is never empty.
type Delta struct {
	Kind Kind
	Text string
}

type state int

const (
	scanning state = iota
	inReasoning
	inAnswer
)

// holdback is the longest marker length minus one byte.
var holdback = maxLen(
	domain.MarkerReasoningStart,
	domain.MarkerReasoningEnd,
	domain.MarkerAnswerStart,
	domain.MarkerAnswerEnd,
) - 1

func maxLen(ss ...string) int {
	n := 0
	for _, s := range ss {
		if len(s) > n {
			n = len(s)
		}
	}
	return n
}

// Parser is a synchronous state machine over streamed text. The zero value
// is ready to use. A Parser is not safe for concurrent use.
type Parser struct {
	state state
	buf   string
}

// Feed appends text and returns every delta that can be emitted without
// risking a split marker.
func (p *Parser) Feed(text string) []Delta {
	p.buf += text

	var out []Delta
	for {
		switch p.state {
		case scanning:
			i, marker, next := p.earliestStart()
			if i < 0 {
				return p.release(out, Unstructured)
			}
			out = appendDelta(out, Unstructured, p.buf[:i])
			p.buf = p.buf[i+len(marker):]
			p.state = next
		case inReasoning:
			i := strings.Index(p.buf, domain.MarkerReasoningEnd)
			if i < 0 {
				return p.release(out, Reasoning)
			}
			out = appendDelta(out, Reasoning, p.buf[:i])
			p.buf = p.buf[i+len(domain.MarkerReasoningEnd):]
			p.state = scanning
		case inAnswer:
			i := strings.Index(p.buf, domain.MarkerAnswerEnd)
			if i < 0 {
				return p.release(out, Answer)
			}
			out = appendDelta(out, Answer, p.buf[:i])
			p.buf = p.buf[i+len(domain.MarkerAnswerEnd):]
			p.state = scanning
		}
	}
}

// Flush emits whatever is buffered as a delta of the current state and
// resets the parser.
func (p *Parser) Flush() []Delta {
	out := appendDelta(nil, p.kind(), p.buf)
	p.buf = ""
	p.state = scanning
	return out
}

func (p *Parser) kind() Kind {
	switch p.state {
	case inReasoning:
		return Reasoning
	case inAnswer:
		return Answer
	default:
		return Unstructured
	}
}

// earliestStart finds whichever start marker occurs first in the buffer.
func (p *Parser) earliestStart() (int, string, state) {
	r := strings.Index(p.buf, domain.MarkerReasoningStart)
	a := strings.Index(p.buf, domain.MarkerAnswerStart)
	switch {
	case r >= 0 && (a < 0 || r <= a):
		return r, domain.MarkerReasoningStart, inReasoning
	case a >= 0:
		return a, domain.MarkerAnswerStart, inAnswer
	default:
		return -1, "", scanning
	}
}

// release emits all but the holdback tail, never cutting a UTF-8 sequence.
func (p *Parser) release(out []Delta, kind Kind) []Delta {
	cut := len(p.buf) - holdback
	if cut <= 0 {
		return out
	}
	for cut > 0 && !utf8.RuneStart(p.buf[cut]) {
		cut--
	}
	out = appendDelta(out, kind, p.buf[:cut])
	p.buf = p.buf[cut:]
	return out
}

func appendDelta(out []Delta, kind Kind, text string) []Delta {
	if text == "" {
		return out
	}
	return append(out, Delta{Kind: kind, Text: text})
}
