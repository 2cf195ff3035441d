package bahn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	BaseURL    = "https://ps.bahn.de/preissuche/preissuche"
	StationURL = "https://reiseauskunft.bahn.de/bin/ajax-getstop.exe/dn"
)

var (
	// ErrTokenUnavailable means the landing page had no usable
	// anti-forgery token (malformed or blocked response).
	ErrTokenUnavailable = errors.New("bahn: psc token not found in search page")

	// ErrUpstreamRejected means the price service answered the query
	// with a redirect instead of a result.
	ErrUpstreamRejected = errors.New("bahn: price service rejected the query")
)

// UpstreamError is a failure the price service reported inside an
// otherwise well-formed response.
type UpstreamError struct {
	Text string
}

func (e *UpstreamError) Error() string {
	return "bahn: " + e.Text
}

// Client queries the Sparpreis search service. It keeps no state between
// calls; every search fetches a fresh token.
type Client struct {
	HTTPClient *http.Client

	// Endpoints, overridable for tests
	BaseURL    string
	StationURL string
}

func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			// A redirect means the backend rejected the query,
			// so surface the 3xx instead of following it.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		BaseURL:    BaseURL,
		StationURL: StationURL,
	}
}

type searchQuery struct {
	Start      string      `json:"s"`
	Dest       string      `json:"d"`
	Date       string      `json:"dt"`
	Time       string      `json:"t"`
	Window     int         `json:"dur"`
	Token      string      `json:"pscexpires"`
	Direction  int         `json:"dir"`
	SV         bool        `json:"sv"`
	NoICE      bool        `json:"ohneICE"`
	BahnCard   bool        `json:"bic"`
	TCT        string      `json:"tct"`
	Class      string      `json:"c"`
	Travellers []traveller `json:"travellers"`
}

type traveller struct {
	Type     string `json:"typ"`
	BahnCard string `json:"bc"`
	Age      string `json:"alter"`
}

// RawResult is the decoded price-service payload. Itineraries and offers
// are two correlated maps keyed by stringified indices.
type RawResult struct {
	Itineraries map[string]RawItinerary `json:"verbindungen"`
	Offers      map[string]RawOffer     `json:"angebote"`
	Error       *RawError               `json:"error"`
}

type RawItinerary struct {
	Duration string   `json:"dur"` // "H:MM"
	Legs     []RawLeg `json:"trains"`
}

type RawLeg struct {
	Departure RawStop `json:"dep"`
	Arrival   RawStop `json:"arr"`
}

type RawStop struct {
	Time string `json:"t"`
}

type RawOffer struct {
	Price string   `json:"p"`    // comma-decimal, e.g. "29,90"
	SIDs  []string `json:"sids"` // itinerary indices this offer prices
}

type RawError struct {
	Text string `json:"t"`
}

// FetchToken pulls the current anti-forgery token out of the search
// initiation page.
func (c *Client) FetchToken() (string, error) {
	resp, err := c.HTTPClient.Post(c.BaseURL+"/psc_angebotssuche.post?lang=de&country=DEU", "", nil)
	if err != nil {
		return "", fmt.Errorf("request search page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse search page: %w", err)
	}

	token, ok := doc.Find("#pscExpires").Attr("value")
	if !ok || token == "" {
		return "", ErrTokenUnavailable
	}
	return token, nil
}

// Search runs the full handshake for one origin/destination/date and
// returns the decoded result. Passenger defaults: one adult, no BahnCard,
// full-day window.
func (c *Client) Search(origin, dest string, date time.Time) (*RawResult, error) {
	token, err := c.FetchToken()
	if err != nil {
		return nil, err
	}

	query := searchQuery{
		Start:      origin,
		Dest:       dest,
		Date:       date.Format("02.01.06"),
		Time:       "0:00",
		Window:     1440,
		Token:      token,
		Direction:  1,
		SV:         true,
		TCT:        "0",
		Class:      "2",
		Travellers: []traveller{{Type: "E", BahnCard: "0"}},
	}
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	params := url.Values{}
	params.Set("lang", "de")
	params.Set("country", "DEU")
	params.Set("service", "pscangebotsuche")
	params.Set("data", string(data))

	resp, err := c.HTTPClient.Get(c.BaseURL + "/psc_service.go?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("request price service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, ErrUpstreamRejected
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read price service response: %w", err)
	}

	var result RawResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode price service response: %w", err)
	}
	if result.Error != nil {
		return nil, &UpstreamError{Text: result.Error.Text}
	}
	return &result, nil
}

// ErrNoStation means the autocomplete service had no suggestion for the
// entered name.
var ErrNoStation = errors.New("bahn: no station found")

type Station struct {
	ID   string `json:"extId"`
	Name string `json:"value"`
}

// FindStation resolves a station name typed by a user to the first
// autocomplete suggestion. The endpoint wraps its JSON in a JavaScript
// assignment, so the suggestion array is cut out by bracket positions.
func (c *Client) FindStation(name string) (*Station, error) {
	params := url.Values{}
	params.Set("REQ0JourneyStopsS0A", "1")
	params.Set("REQ0JourneyStopsB", "1")
	params.Set("S", name)

	resp, err := c.HTTPClient.Get(c.StationURL + "?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("request station lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read station lookup response: %w", err)
	}

	text := string(body)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, ErrNoStation
	}

	var stations []Station
	if err := json.Unmarshal([]byte(text[start:end+1]), &stations); err != nil {
		return nil, fmt.Errorf("decode station suggestions: %w", err)
	}
	if len(stations) == 0 {
		return nil, ErrNoStation
	}
	return &stations[0], nil
}
