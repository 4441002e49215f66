// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package memo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xcherryio/durable/protocol"
)

type Kind int

const (
	// KindData is a successful step result, possibly JSON null
	KindData Kind = iota
	// KindError is a failed step
	KindError
	// KindNull is a step with no result, e.g. a wait-for-event that timed out
	KindNull
)

// Memo is a prior result for one hashed step id.
type Memo struct {
	Kind  Kind
	Data  json.RawMessage
	Error *protocol.ErrorData
}

// Decode unmarshals the memoized data into v
func (m Memo) Decode(v any) error {
	if m.Kind != KindData || len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Parse decodes one raw memo. An object whose keys are a non-empty subset of
// {data, error} is a wrapped memo, null is a null memo, anything else is data.
func Parse(raw json.RawMessage) (Memo, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Memo{Kind: KindNull}, nil
	}
	if trimmed[0] != '{' {
		return Memo{Kind: KindData, Data: trimmed}, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return Memo{}, fmt.Errorf("invalid memo: %w", err)
	}
	if !isWrapped(wrapped) {
		return Memo{Kind: KindData, Data: trimmed}, nil
	}
	if rawErr, ok := wrapped["error"]; ok && !isNull(rawErr) {
		var errData protocol.ErrorData
		if err := json.Unmarshal(rawErr, &errData); err != nil {
			return Memo{}, fmt.Errorf("invalid memo error: %w", err)
		}
		return Memo{Kind: KindError, Error: &errData}, nil
	}
	data, ok := wrapped["data"]
	if !ok || isNull(data) {
		return Memo{Kind: KindData, Data: json.RawMessage("null")}, nil
	}
	return Memo{Kind: KindData, Data: data}, nil
}

func isWrapped(obj map[string]json.RawMessage) bool {
	if len(obj) == 0 {
		return false
	}
	for k := range obj {
		if k != "data" && k != "error" {
			return false
		}
	}
	return true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Store serves the orchestrator supplied memos of one invocation. Every memo is
// consumed at most once per replay pass.
type Store struct {
	mu    sync.Mutex
	memos map[string]Memo
}

func NewStore() *Store {
	return &Store{memos: map[string]Memo{}}
}

// FromRaw builds the store from the request's steps map
func FromRaw(raw map[string]json.RawMessage) (*Store, error) {
	s := NewStore()
	for id, r := range raw {
		m, err := Parse(r)
		if err != nil {
			return nil, fmt.Errorf("step %v: %w", id, err)
		}
		s.memos[id] = m
	}
	return s, nil
}

// Pop returns and removes the memo for the hashed id
func (s *Store) Pop(hashedId string) (Memo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memos[hashedId]
	if ok {
		delete(s.memos, hashedId)
	}
	return m, ok
}

// Peek reports the memo without consuming it
func (s *Store) Peek(hashedId string) (Memo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memos[hashedId]
	return m, ok
}

func (s *Store) Has(hashedId string) bool {
	_, ok := s.Peek(hashedId)
	return ok
}

// Size is the number of memos not consumed yet
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memos)
}

// Range calls fn over a snapshot of the unconsumed memos until fn returns false
func (s *Store) Range(fn func(hashedId string, m Memo) bool) {
	s.mu.Lock()
	snapshot := make(map[string]Memo, len(s.memos))
	for k, v := range s.memos {
		snapshot[k] = v
	}
	s.mu.Unlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Replace swaps an existing memo, e.g. after a state driver resolved a placeholder
func (s *Store) Replace(hashedId string, m Memo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memos[hashedId]; ok {
		s.memos[hashedId] = m
	}
}
