package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Kind names the API resource a document came from
type Kind string

const (
	KindFixtures    Kind = "fixtures"
	KindRaces       Kind = "races"
	KindResults     Kind = "results"
	KindHorses      Kind = "horses"
	KindRacecourses Kind = "racecourses"
)

// Sink receives every fetched document. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(kind Kind, key string, doc json.RawMessage) error
}

// Record is one line of NDJSON output
type Record struct {
	Kind     Kind            `json:"kind"`
	Key      string          `json:"key"`
	Document json.RawMessage `json:"document"`
}

// NDJSONSink writes one Record per line to w
type NDJSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   int
}

func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{enc: json.NewEncoder(w)}
}

func (s *NDJSONSink) Write(kind Kind, key string, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(Record{Kind: kind, Key: key, Document: doc}); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", kind, key, err)
	}
	s.n++
	return nil
}

// Count returns the number of records written
func (s *NDJSONSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Discard drops every document
type Discard struct{}

func (Discard) Write(Kind, string, json.RawMessage) error { return nil }
