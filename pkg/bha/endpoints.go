package bha

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultBaseURL is the vendor API root
	DefaultBaseURL = "https://api09.horseracing.software/bha/v1"

	// FixtureFields is the field selection sent with fixture queries
	FixtureFields = "courseId,courseName,fixtureDate,fixtureType,fixtureSession,abandonedReasonCode,highlightTitle"

	// DefaultPerPage is the largest page size the fixtures endpoint accepts
	DefaultPerPage = 250

	// DefaultAccept mirrors what the vendor's own front end sends
	DefaultAccept = "application/json, text/plain, */*"
)

// Endpoint is a path template relative to the base URL. Segments written
// as {name} are filled from FetchRequest.PathParams.
type Endpoint string

const (
	EndpointFixtures    Endpoint = "/fixtures/"
	EndpointRaces       Endpoint = "/fixtures/{year}/{fixture_id}/races"
	EndpointResults     Endpoint = "/races/{year}/{race_id}/0/results"
	EndpointHorse       Endpoint = "/racehorses/{animal_id}"
	EndpointRacecourses Endpoint = "/racecourses/"
)

// FetchRequest describes one GET against the vendor API
type FetchRequest struct {
	Endpoint   Endpoint
	PathParams map[string]string
	Query      url.Values
	Accept     string
	UseCache   bool
}

// Resolve expands the endpoint template against baseURL
func (r FetchRequest) Resolve(baseURL string) (string, error) {
	path := string(r.Endpoint)
	for name, value := range r.PathParams {
		if value == "" {
			return "", fmt.Errorf("path parameter %q is empty", name)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	if i := strings.IndexByte(path, '{'); i >= 0 {
		j := strings.IndexByte(path[i:], '}')
		if j < 0 {
			return "", fmt.Errorf("malformed endpoint template %q", r.Endpoint)
		}
		return "", fmt.Errorf("missing path parameter %q for %s", path[i+1:i+j], r.Endpoint)
	}

	u := strings.TrimRight(baseURL, "/") + path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u, nil
}

// FixturesRequest lists fixtures with results for one month, newest first
func FixturesRequest(year, month, page, perPage int) FetchRequest {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	q := url.Values{}
	q.Set("fields", FixtureFields)
	q.Set("month", strconv.Itoa(month))
	q.Set("order", "desc")
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("resultsAvailable", "1")
	q.Set("year", strconv.Itoa(year))

	return FetchRequest{Endpoint: EndpointFixtures, Query: q, UseCache: true}
}

// RacesRequest lists the races run at a fixture
func RacesRequest(year int, fixtureID string) FetchRequest {
	return FetchRequest{
		Endpoint:   EndpointRaces,
		PathParams: map[string]string{"year": strconv.Itoa(year), "fixture_id": fixtureID},
		UseCache:   true,
	}
}

// ResultsRequest fetches the result of one race
func ResultsRequest(year int, raceID string) FetchRequest {
	return FetchRequest{
		Endpoint:   EndpointResults,
		PathParams: map[string]string{"year": strconv.Itoa(year), "race_id": raceID},
		UseCache:   true,
	}
}

// HorseRequest fetches a horse's profile
func HorseRequest(animalID string) FetchRequest {
	return FetchRequest{
		Endpoint:   EndpointHorse,
		PathParams: map[string]string{"animal_id": animalID},
		UseCache:   true,
	}
}

// RacecoursesRequest lists every racecourse
func RacecoursesRequest() FetchRequest {
	return FetchRequest{Endpoint: EndpointRacecourses, UseCache: true}
}
