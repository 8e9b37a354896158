package bha

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		req  FetchRequest
		want string
	}{
		{
			name: "races",
			req:  RacesRequest(2024, "12345"),
			want: "https://api09.horseracing.software/bha/v1/fixtures/2024/12345/races",
		},
		{
			name: "results",
			req:  ResultsRequest(2023, "678"),
			want: "https://api09.horseracing.software/bha/v1/races/2023/678/0/results",
		},
		{
			name: "horse with escaped id",
			req:  HorseRequest("a/b"),
			want: "https://api09.horseracing.software/bha/v1/racehorses/a%2Fb",
		},
		{
			name: "racecourses",
			req:  RacecoursesRequest(),
			want: "https://api09.horseracing.software/bha/v1/racecourses/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Resolve(DefaultBaseURL + "/")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveFixturesQuery(t *testing.T) {
	got, err := FixturesRequest(2024, 3, 1, 0).Resolve(DefaultBaseURL)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/bha/v1/fixtures/", u.Path)

	q := u.Query()
	assert.Equal(t, FixtureFields, q.Get("fields"))
	assert.Equal(t, "3", q.Get("month"))
	assert.Equal(t, "2024", q.Get("year"))
	assert.Equal(t, "desc", q.Get("order"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "250", q.Get("per_page"))
	assert.Equal(t, "1", q.Get("resultsAvailable"))
}

func TestResolveMissingParams(t *testing.T) {
	_, err := FetchRequest{Endpoint: EndpointRaces, PathParams: map[string]string{"year": "2024"}}.Resolve(DefaultBaseURL)
	assert.ErrorContains(t, err, `missing path parameter "fixture_id"`)

	_, err = RacesRequest(2024, "").Resolve(DefaultBaseURL)
	assert.ErrorContains(t, err, "empty")
}
