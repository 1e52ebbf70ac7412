package core

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"
)

type fakeMessage struct {
	summary Summary
	labels  map[LabelID]bool
	unread  bool
}

// fakeMailbox mimics a mailbox whose search excludes read, marked and spam
// messages
type fakeMailbox struct {
	mu       sync.Mutex
	messages map[string]*fakeMessage
	order    []string
	labels   map[string]LabelID

	discoverFailures int
	discoverDelay    time.Duration
	fetchErrs        map[string]error
	applyFailures    map[string]int
	resolveErr       error

	discoverCalls int
	fetchCalls    []string
	applyCalls    []string
	created       []string
	createdOpts   []LabelOptions
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages:      make(map[string]*fakeMessage),
		labels:        make(map[string]LabelID),
		fetchErrs:     make(map[string]error),
		applyFailures: make(map[string]int),
	}
}

func (m *fakeMailbox) addMessage(id string, summary Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[id] = &fakeMessage{
		summary: summary,
		labels:  map[LabelID]bool{LabelInbox: true},
		unread:  true,
	}
	m.order = append(m.order, id)
}

func (m *fakeMailbox) hasLabel(id string, label LabelID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[id].labels[label]
}

func (m *fakeMailbox) DiscoverCandidates(ctx context.Context, marker Marker) iter.Seq2[MessageRef, error] {
	return func(yield func(MessageRef, error) bool) {
		m.mu.Lock()
		m.discoverCalls++
		if m.discoverFailures > 0 {
			m.discoverFailures--
			m.mu.Unlock()
			yield(MessageRef{}, NewTransientError("messages.list", errors.New("rate limited")))
			return
		}
		var ids []string
		for _, id := range m.order {
			msg := m.messages[id]
			if msg.unread && !msg.labels[marker.ID] && !msg.labels[LabelSpam] {
				ids = append(ids, id)
			}
		}
		delay := m.discoverDelay
		m.mu.Unlock()

		for _, id := range ids {
			if delay > 0 {
				select {
				case <-ctx.Done():
					yield(MessageRef{}, NewTransientError("messages.list", ctx.Err()))
					return
				case <-time.After(delay):
				}
			}
			if !yield(MessageRef{ID: id}, nil) {
				return
			}
		}
	}
}

func (m *fakeMailbox) FetchSummary(_ context.Context, ref MessageRef) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls = append(m.fetchCalls, ref.ID)
	if err := m.fetchErrs[ref.ID]; err != nil {
		return nil, err
	}
	msg, ok := m.messages[ref.ID]
	if !ok {
		return nil, NewPermanentError("messages.get", errors.New("not found"))
	}
	summary := msg.summary
	return &summary, nil
}

func (m *fakeMailbox) ApplyLabels(_ context.Context, ref MessageRef, add, remove []LabelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls = append(m.applyCalls, ref.ID)
	if m.applyFailures[ref.ID] > 0 {
		m.applyFailures[ref.ID]--
		return NewTransientError("messages.modify", errors.New("backend error"))
	}
	msg := m.messages[ref.ID]
	for _, l := range add {
		msg.labels[l] = true
	}
	for _, l := range remove {
		delete(msg.labels, l)
	}
	return nil
}

func (m *fakeMailbox) ResolveOrCreateLabel(_ context.Context, name string, opts LabelOptions) (LabelID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolveErr != nil {
		return "", m.resolveErr
	}
	if id, ok := m.labels[name]; ok {
		return id, nil
	}
	id := LabelID("Label_" + name)
	m.labels[name] = id
	m.created = append(m.created, name)
	m.createdOpts = append(m.createdOpts, opts)
	return id, nil
}

// fakeClassifier returns scores keyed by sender substring and records inputs
type fakeClassifier struct {
	mu     sync.Mutex
	scores map[string]float64
	def    float64
	err    error
	inputs []string
}

func (c *fakeClassifier) Score(_ context.Context, text string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, text)
	if c.err != nil {
		return 0, c.err
	}
	keys := make([]string, 0, len(c.scores))
	for k := range c.scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(text, k) {
			return c.scores[k], nil
		}
	}
	return c.def, nil
}

func (c *fakeClassifier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inputs)
}
