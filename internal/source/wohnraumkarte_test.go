package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wohnblick/wohnblick/internal/model"
)

func TestWohnraumkarte_FetchListings(t *testing.T) {
	payload := `{
		"results": [
			{
				"wrk_id": "98765",
				"slug": "2-zimmer-wohnung-wedding",
				"strasse": "Müllerstraße 12",
				"plz": "13353",
				"ort": "Berlin OT Wedding",
				"preis": "820.50",
				"groesse": "61.3",
				"anzahl_zimmer": "2"
			},
			{
				"wrk_id": "",
				"slug": "broken-item"
			}
		]
	}`
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	a := NewWohnraumkarteAdapter("deutsche-wohnen", "https://www.deutsche-wohnen.com", "https://www.deutsche-wohnen.com/", "deuwo", srv.Client())
	a.apiURL = srv.URL

	listings, err := a.FetchListings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing (item without wrk_id skipped), got %d", len(listings))
	}

	l := listings[0]
	if l.Source != "deutsche-wohnen" {
		t.Errorf("Source = %s", l.Source)
	}
	if want := "https://www.deutsche-wohnen.com/immobilie/2-zimmer-wohnung-wedding/98765"; l.ExternalID != want {
		t.Errorf("ExternalID = %s, want %s", l.ExternalID, want)
	}
	if l.Address != "Müllerstraße 12, 13353 Berlin OT Wedding" {
		t.Errorf("Address = %s", l.Address)
	}
	if l.Borough != "Wedding" {
		t.Errorf("Borough = %s, want Wedding", l.Borough)
	}
	if l.PriceCold == nil || *l.PriceCold != 820.50 {
		t.Errorf("PriceCold = %v, want 820.50", l.PriceCold)
	}
	if l.PriceTotal != nil {
		t.Error("PriceTotal should be unknown for wohnraumkarte listings")
	}
	if l.SizeSqm == nil || *l.SizeSqm != 61.3 {
		t.Errorf("SizeSqm = %v, want 61.3", l.SizeSqm)
	}
	if l.Rooms == nil || *l.Rooms != 2 {
		t.Errorf("Rooms = %v, want 2", l.Rooms)
	}
	if l.WBS != model.WBSUnknown {
		t.Errorf("WBS = %v, want unknown", l.WBS)
	}

	if got := gotQuery["dataSet"]; len(got) != 1 || got[0] != "deuwo" {
		t.Errorf("dataSet param = %v, want [deuwo]", got)
	}
	if got := gotQuery["orderBy"]; len(got) != 1 || got[0] != "date_desc" {
		t.Errorf("orderBy param = %v, want [date_desc]", got)
	}
}

func TestWohnraumkarte_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	a := NewWohnraumkarteAdapter("vonovia", "https://www.vonovia.de", "https://www.vonovia.de/", "", srv.Client())
	a.apiURL = srv.URL

	listings, err := a.FetchListings(context.Background())
	if err != nil {
		t.Fatalf("empty result must not be an error: %v", err)
	}
	if len(listings) != 0 {
		t.Errorf("expected 0 listings, got %d", len(listings))
	}
}

func TestWohnraumkarte_ServerErrorIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewWohnraumkarteAdapter("vonovia", "https://www.vonovia.de", "https://www.vonovia.de/", "", srv.Client())
	a.apiURL = srv.URL

	_, err := a.FetchListings(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*model.HTTPError)
	if !ok {
		t.Fatalf("expected *model.HTTPError, got %T", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", httpErr.StatusCode)
	}
	if httpErr.RetryAfter.Seconds() != 30 {
		t.Errorf("RetryAfter = %v, want 30s", httpErr.RetryAfter)
	}
}
