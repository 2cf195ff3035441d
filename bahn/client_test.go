package bahn

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage = `<html><body><form>
	<input type="hidden" id="pscExpires" name="pscExpires" value="1466872427000">
</form></body></html>`

func testClient(baseURL string) *Client {
	c := NewClient()
	c.BaseURL = baseURL
	c.StationURL = baseURL + "/ajax-getstop.exe/dn"
	return c
}

func TestFetchToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, searchPage)
	}))
	defer srv.Close()

	token, err := testClient(srv.URL).FetchToken()
	require.NoError(t, err)
	assert.Equal(t, "1466872427000", token)
}

func TestFetchTokenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>blocked</body></html>")
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchToken()
	assert.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/psc_angebotssuche.post", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/psc_service.go", func(w http.ResponseWriter, r *http.Request) {
		var query map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("data")), &query))
		assert.Equal(t, "8011160", query["s"])
		assert.Equal(t, "8000261", query["d"])
		assert.Equal(t, "24.12.26", query["dt"])
		assert.Equal(t, "0:00", query["t"])
		assert.Equal(t, "1466872427000", query["pscexpires"])
		assert.Equal(t, float64(1440), query["dur"])
		assert.Equal(t, "pscangebotsuche", r.URL.Query().Get("service"))

		fmt.Fprint(w, samplePayload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	date := time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC)
	raw, err := testClient(srv.URL).Search("8011160", "8000261", date)
	require.NoError(t, err)
	assert.Len(t, raw.Itineraries, 3)
	assert.Len(t, raw.Offers, 2)
}

func TestSearchRejectedByRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/psc_angebotssuche.post", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/psc_service.go", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/error", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := testClient(srv.URL).Search("8011160", "8000261", time.Now())
	assert.ErrorIs(t, err, ErrUpstreamRejected)
}

func TestSearchUpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/psc_angebotssuche.post", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/psc_service.go", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"t":"Zu dem gewählten Datum liegen keine Daten vor."}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := testClient(srv.URL).Search("8011160", "8000261", time.Now())
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "Zu dem gewählten Datum liegen keine Daten vor.", upstream.Text)
}

func TestFindStation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Berlin", r.URL.Query().Get("S"))
		fmt.Fprint(w, `SLs.sls={"suggestions":[{"value":"Berlin Hbf","extId":"8011160"},{"value":"Berlin Ostbahnhof","extId":"8010255"}]};SLs.showSuggestion();`)
	}))
	defer srv.Close()

	c := NewClient()
	c.StationURL = srv.URL

	station, err := c.FindStation("Berlin")
	require.NoError(t, err)
	assert.Equal(t, "8011160", station.ID)
	assert.Equal(t, "Berlin Hbf", station.Name)
}

func TestFindStationNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `SLs.sls={"suggestions":[]};SLs.showSuggestion();`)
	}))
	defer srv.Close()

	c := NewClient()
	c.StationURL = srv.URL

	_, err := c.FindStation("Nirgendwo")
	assert.ErrorIs(t, err, ErrNoStation)
}
