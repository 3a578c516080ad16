// Package llmtest provides a scripted Generator for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/canopy/pkg/llm"
)

// Matcher selects the requests a rule answers.
type Matcher func(req llm.Request) bool

// Reply produces the completion for a matched request.
type Reply func(req llm.Request) (string, error)

type rule struct {
	match Matcher
	reply Reply
}

// Scripted answers requests from an ordered list of rules. The first rule
// whose matcher accepts the request wins. Unmatched requests fail.
type Scripted struct {
	mu    sync.Mutex
	rules []rule
	calls []llm.Request
}

// New creates an empty script.
func New() *Scripted {
	return &Scripted{}
}

// On answers requests matched by m with replies in order. The last reply
// repeats once the list is exhausted.
func (s *Scripted) On(m Matcher, replies ...string) *Scripted {
	var (
		mu sync.Mutex
		i  int
	)
	return s.OnFunc(m, func(llm.Request) (string, error) {
		if len(replies) == 0 {
			return "", nil
		}
		mu.Lock()
		defer mu.Unlock()
		r := replies[min(i, len(replies)-1)]
		i++
		return r, nil
	})
}

// OnFunc answers requests matched by m with reply.
func (s *Scripted) OnFunc(m Matcher, reply Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{match: m, reply: reply})
	return s
}

// Generate implements llm.Generator.
func (s *Scripted) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.calls = append(s.calls, req)
	rules := s.rules
	s.mu.Unlock()

	for _, r := range rules {
		if r.match(req) {
			return r.reply(req)
		}
	}
	return "", fmt.Errorf("llmtest: no rule for prefill %q", req.Prefill())
}

// Calls returns every request received so far.
func (s *Scripted) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.calls...)
}

// CountMatching returns how many received requests m accepts.
func (s *Scripted) CountMatching(m Matcher) int {
	n := 0
	for _, req := range s.Calls() {
		if m(req) {
			n++
		}
	}
	return n
}

// Prefill matches requests whose prefill contains substr.
func Prefill(substr string) Matcher {
	return func(req llm.Request) bool {
		return strings.Contains(req.Prefill(), substr)
	}
}

// User matches requests whose last user message contains substr.
func User(substr string) Matcher {
	return func(req llm.Request) bool {
		return strings.Contains(req.LastUser(), substr)
	}
}

// All matches when every matcher does.
func All(ms ...Matcher) Matcher {
	return func(req llm.Request) bool {
		for _, m := range ms {
			if !m(req) {
				return false
			}
		}
		return true
	}
}

// Any matches every request.
func Any() Matcher {
	return func(llm.Request) bool { return true }
}
