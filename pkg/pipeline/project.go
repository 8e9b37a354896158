package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"bhascraper/pkg/bha"
	"bhascraper/pkg/checkpoint"
	"bhascraper/pkg/daterange"
	errs "bhascraper/pkg/errors"
)

// Fields names the JSON keys the pipeline reads from otherwise opaque
// documents
type Fields struct {
	List        string
	FixtureID   string
	FixtureDate string
	RaceID      string
	AnimalID    string
}

// DefaultFields matches the vendor API's current payloads
func DefaultFields() Fields {
	return Fields{
		List:        "data",
		FixtureID:   "fixtureId",
		FixtureDate: "fixtureDate",
		RaceID:      "raceId",
		AnimalID:    "animalId",
	}
}

type item map[string]json.RawMessage

// listItems returns the objects of a list document. A top-level array is
// used as is; an object yields the array under listField, or nothing when
// the key is absent.
func listItems(doc bha.Document, listField string) ([]item, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return nil, errs.New(errs.ErrorTypeMalformedResponse, 0, "empty document")
	}

	raw := json.RawMessage(trimmed)
	if trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeMalformedResponse, 0, err, "document is not an object")
		}
		list, ok := obj[listField]
		if !ok || string(list) == "null" {
			return nil, nil
		}
		raw = list
	}

	var items []item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeMalformedResponse, 0, err, "%q is not a list of objects", listField)
	}
	return items, nil
}

// str returns field as a string. Numbers are kept in their literal form so
// large ids are not rounded.
func (it item) str(field string) (string, bool) {
	raw, ok := it[field]
	if !ok {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err == nil {
		return n.String(), true
	}
	return "", false
}

// date parses the leading YYYY-MM-DD of field
func (it item) date(field string) (time.Time, bool) {
	s, ok := it.str(field)
	if !ok || len(s) < len(daterange.Layout) {
		return time.Time{}, false
	}
	t, err := time.Parse(daterange.Layout, s[:len(daterange.Layout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ids projects field from every item, dropping items without it and
// duplicates
func ids(items []item, field string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		id, ok := it.str(field)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Months returns the distinct (year, month) buckets touched by r, ascending
func Months(r daterange.Range) []checkpoint.Month {
	var months []checkpoint.Month
	for day := range r.Days() {
		m := checkpoint.Month{Year: day.Year(), Month: int(day.Month())}
		if len(months) == 0 || months[len(months)-1] != m {
			months = append(months, m)
		}
	}
	return months
}

func fixtureKey(m checkpoint.Month, page int) string {
	return fmt.Sprintf("%s-p%d", m, page)
}
