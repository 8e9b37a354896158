// Package bhatest provides an in-process stand-in for the horseracing API.
//
// The server holds a small fixture/race/result/horse graph behind a bearer
// check and lets tests inject failures per path: forced status codes, raw
// bodies, delays and a number of 429 responses before a path succeeds.
package bhatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Prefix is the path every endpoint is served under
const Prefix = "/bha/v1"

// Doc is one JSON object in a response
type Doc = map[string]interface{}

// Server is a fake API backed by httptest
type Server struct {
	server *httptest.Server

	mu              sync.Mutex
	valid           string
	rotateOnResults string
	hits            map[string]int

	fixtures map[string][][]Doc // "2024-1" -> pages
	races    map[string][]string
	results  map[string][]string

	status    map[string]int
	raw       map[string]string
	delays    map[string]time.Duration
	rateLimit map[string]int

	ignorePaging map[string]bool

	requestCount  int32
	rateLimitHits int32
}

// New starts a server with the default dataset and valid token "tok-1".
//
// January 2024 has fixtures 101 and 100 on the first page and 99 on the
// second; February has "201" (string id) and 202. Races R1..R4 hang off
// 101, 99 and 201 with horses H1..H4 in their results.
func New() *Server {
	s := &Server{
		valid: "tok-1",
		hits:  make(map[string]int),
		fixtures: map[string][][]Doc{
			"2024-1": {
				{{"fixtureId": 101, "fixtureDate": "2024-01-31T00:00:00"}, {"fixtureId": 100, "fixtureDate": "2024-01-05"}},
				{{"fixtureId": 99, "fixtureDate": "2024-01-30"}},
			},
			"2024-2": {
				{{"fixtureId": "201", "fixtureDate": "2024-02-01"}, {"fixtureId": 202, "fixtureDate": "2024-02-20"}},
			},
		},
		races: map[string][]string{
			"101": {"R1", "R2"},
			"99":  {"R3"},
			"201": {"R4"},
			"100": {"R100"},
			"202": {"R202"},
		},
		results: map[string][]string{
			"R1": {"H1", "H2"},
			"R2": {"H2", "H3"},
			"R3": {"H1"},
			"R4": {"H4"},
		},
		status:    make(map[string]int),
		raw:       make(map[string]string),
		delays:    make(map[string]time.Duration),
		rateLimit: make(map[string]int),

		ignorePaging: make(map[string]bool),
	}
	s.server = httptest.NewServer(s)
	return s
}

// URL returns the API base URL, prefix included
func (s *Server) URL() string {
	return s.server.URL + Prefix
}

// Close shuts down the server
func (s *Server) Close() {
	s.server.Close()
}

// SetValidToken changes the bearer value the server accepts
func (s *Server) SetValidToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = tok
}

// RotateTokenOnResults makes tok the only valid token from the first
// results request onwards, simulating expiry mid-run.
func (s *Server) RotateTokenOnResults(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateOnResults = tok
}

// FailWith forces status for every request to path
func (s *Server) FailWith(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = status
}

// RespondRaw serves body with 200 for every request to path
func (s *Server) RespondRaw(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[path] = body
}

// SetDelay holds requests to path for d before answering
func (s *Server) SetDelay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// RateLimit answers the next n requests to path with 429
func (s *Server) RateLimit(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimit[path] = n
}

// IgnorePaging makes the fixture listing for year/month return its first
// page whatever page is asked for
func (s *Server) IgnorePaging(year, month int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignorePaging[fmt.Sprintf("%d-%d", year, month)] = true
}

// Hits reports how often key was requested. Fixture listings are keyed
// "fixtures <year>-<month> p<page>", everything else by path without the
// prefix.
func (s *Server) Hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key]
}

// RequestCount returns the total number of requests received
func (s *Server) RequestCount() int {
	return int(atomic.LoadInt32(&s.requestCount))
}

// RateLimitHits returns how many 429s were served
func (s *Server) RateLimitHits() int {
	return int(atomic.LoadInt32(&s.rateLimitHits))
}

// ServeHTTP routes one request
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.requestCount, 1)

	path := strings.TrimPrefix(r.URL.Path, Prefix)
	key := path
	if path == "/fixtures/" {
		q := r.URL.Query()
		key = fmt.Sprintf("fixtures %s-%s p%s", q.Get("year"), q.Get("month"), q.Get("page"))
	}

	s.mu.Lock()
	s.hits[key]++
	if s.rotateOnResults != "" && strings.HasPrefix(path, "/races/") {
		s.valid = s.rotateOnResults
		s.rotateOnResults = ""
	}
	valid := s.valid
	status, forced := s.status[path]
	raw, hasRaw := s.raw[path]
	delay := s.delays[path]
	limited := s.rateLimit[path] > 0
	if limited {
		s.rateLimit[path]--
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Header.Get("Authorization") != "Bearer "+valid {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if limited {
		atomic.AddInt32(&s.rateLimitHits, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	if forced {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"forced"}`))
		return
	}
	if hasRaw {
		_, _ = w.Write([]byte(raw))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	var data []Doc
	switch {
	case path == "/fixtures/":
		q := r.URL.Query()
		ym := q.Get("year") + "-" + q.Get("month")
		s.mu.Lock()
		pages := s.fixtures[ym]
		ignore := s.ignorePaging[ym]
		s.mu.Unlock()
		page, _ := strconv.Atoi(q.Get("page"))
		if ignore {
			page = 1
		}
		if page >= 1 && page <= len(pages) {
			data = pages[page-1]
		}
	case parts[0] == "fixtures" && len(parts) == 4:
		for _, id := range s.races[parts[2]] {
			data = append(data, Doc{"raceId": id})
		}
	case parts[0] == "races" && len(parts) == 5:
		for _, id := range s.results[parts[2]] {
			data = append(data, Doc{"animalId": id})
		}
	case parts[0] == "racehorses" && len(parts) == 2:
		_ = json.NewEncoder(w).Encode(Doc{"animalId": parts[1]})
		return
	case parts[0] == "racecourses":
		data = []Doc{{"courseId": 1}}
	default:
		http.NotFound(w, r)
		return
	}
	if data == nil {
		data = []Doc{}
	}
	_ = json.NewEncoder(w).Encode(Doc{"data": data})
}
