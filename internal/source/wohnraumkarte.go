package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wohnblick/wohnblick/internal/model"
)

const wohnraumkarteAPIURL = "https://www.wohnraumkarte.de/api/getImmoList"

// batchSize is tuned for live updates: the API returns newest first, so the
// first batch is enough between polls.
const batchSize = 50

// wohnraumkarteItem is a single listing in the getImmoList response.
type wohnraumkarteItem struct {
	WrkID   string `json:"wrk_id"`
	Slug    string `json:"slug"`
	Strasse string `json:"strasse"`
	PLZ     string `json:"plz"`
	Ort     string `json:"ort"`
	Preis   string `json:"preis"`
	Groesse string `json:"groesse"`
	Zimmer  string `json:"anzahl_zimmer"`
}

type wohnraumkarteResponse struct {
	Results []wohnraumkarteItem `json:"results"`
}

// WohnraumkarteAdapter fetches listings from the wohnraumkarte.de API, the
// backend shared by several Berlin landlords (Deutsche Wohnen, Vonovia and
// others). The API exposes cold rent only, so PriceTotal stays unknown.
type WohnraumkarteAdapter struct {
	name    string
	apiURL  string
	baseURL string // landlord site, used to build detail URLs
	referer string
	dataset string // optional dataSet filter, e.g. "deuwo"
	client  *http.Client
}

// NewWohnraumkarteAdapter creates an adapter for one landlord on the
// wohnraumkarte platform. dataset may be empty for landlords without a
// dedicated data set.
func NewWohnraumkarteAdapter(name, baseURL, referer, dataset string, client *http.Client) *WohnraumkarteAdapter {
	return &WohnraumkarteAdapter{
		name:    name,
		apiURL:  wohnraumkarteAPIURL,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		referer: referer,
		dataset: dataset,
		client:  client,
	}
}

func (a *WohnraumkarteAdapter) Name() string { return a.name }

// FetchListings retrieves the newest batch of listings and normalizes them.
func (a *WohnraumkarteAdapter) FetchListings(ctx context.Context) ([]model.Listing, error) {
	req, err := newGetRequest(ctx, a.apiURL+"?"+a.queryParams().Encode())
	if err != nil {
		return nil, fmt.Errorf("wohnraumkarte fetch for %s: %w", a.name, err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Referer", a.referer)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wohnraumkarte fetch for %s: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(a.name, resp)
	}

	var wr wohnraumkarteResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("wohnraumkarte fetch for %s: %w", a.name, err)
	}

	listings := make([]model.Listing, 0, len(wr.Results))
	for _, item := range wr.Results {
		if item.WrkID == "" {
			continue
		}
		listings = append(listings, a.normalize(item))
	}
	return listings, nil
}

func (a *WohnraumkarteAdapter) queryParams() url.Values {
	params := url.Values{
		"rentType": {"miete"},
		"city":     {"Berlin"},
		"immoType": {"wohnung"},
		"limit":    {fmt.Sprintf("%d", batchSize)},
		"offset":   {"0"},
		"orderBy":  {"date_desc"},
	}
	if a.dataset != "" {
		params.Set("dataSet", a.dataset)
	}
	return params
}

func (a *WohnraumkarteAdapter) normalize(item wohnraumkarteItem) model.Listing {
	return model.Listing{
		Source:     a.name,
		ExternalID: a.detailURL(item),
		Address:    buildAddress(item.Strasse, item.PLZ, item.Ort),
		Borough:    extractOrtsteil(item.Ort),
		PriceCold:  parseFloat(item.Preis),
		SizeSqm:    parseFloat(item.Groesse),
		Rooms:      parseFloat(item.Zimmer),
		WBS:        model.WBSUnknown, // not exposed by the API
	}
}

func (a *WohnraumkarteAdapter) detailURL(item wohnraumkarteItem) string {
	return fmt.Sprintf("%s/immobilie/%s/%s", a.baseURL, item.Slug, item.WrkID)
}

func buildAddress(street, plz, ort string) string {
	street, plz, ort = strings.TrimSpace(street), strings.TrimSpace(plz), strings.TrimSpace(ort)
	switch {
	case street != "" && plz != "" && ort != "":
		return fmt.Sprintf("%s, %s %s", street, plz, ort)
	case plz != "" && ort != "":
		return plz + " " + ort
	default:
		return street
	}
}

// extractOrtsteil pulls the district out of "Berlin OT Wedding" style values.
func extractOrtsteil(ort string) string {
	if _, after, found := strings.Cut(ort, "OT"); found {
		return strings.TrimSpace(after)
	}
	return ""
}
