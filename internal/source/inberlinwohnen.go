package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/wohnblick/wohnblick/internal/model"
)

const inBerlinWohnenURL = "https://www.inberlinwohnen.de/wohnungsfinder"

// InBerlinWohnenAdapter scrapes inberlinwohnen.de, the shared portal of
// Berlin's state-owned housing companies. The site has no public JSON API,
// so listing cards are parsed out of the rendered HTML.
type InBerlinWohnenAdapter struct {
	name   string
	url    string
	client *http.Client
}

func NewInBerlinWohnenAdapter(name string, client *http.Client) *InBerlinWohnenAdapter {
	return &InBerlinWohnenAdapter{
		name:   name,
		url:    inBerlinWohnenURL,
		client: client,
	}
}

func (a *InBerlinWohnenAdapter) Name() string { return a.name }

// FetchListings downloads the apartment finder page and parses its listing
// cards. A page without cards is a legitimate empty result, not an error.
func (a *InBerlinWohnenAdapter) FetchListings(ctx context.Context) ([]model.Listing, error) {
	req, err := newGetRequest(ctx, a.url)
	if err != nil {
		return nil, fmt.Errorf("inberlinwohnen fetch: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inberlinwohnen fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(a.name, resp)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("inberlinwohnen parse: %w", err)
	}

	return a.parseDocument(doc), nil
}

func (a *InBerlinWohnenAdapter) parseDocument(doc *html.Node) []model.Listing {
	cards := findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" &&
			strings.HasPrefix(attr(n, "id"), "apartment-")
	})

	var listings []model.Listing
	for _, card := range cards {
		l, ok := a.parseCard(card)
		if !ok {
			continue
		}
		listings = append(listings, l)
	}
	return listings
}

// parseCard extracts one listing from an apartment card. The card lists its
// attributes as dt/dd pairs; the detail link ("Alle Details") is the identity.
func (a *InBerlinWohnenAdapter) parseCard(card *html.Node) (model.Listing, bool) {
	l := model.Listing{Source: a.name, WBS: model.WBSUnknown}

	for _, link := range findAll(card, isElement("a")) {
		if strings.Contains(textContent(link), "Alle Details") {
			l.ExternalID = attr(link, "href")
			break
		}
	}
	if l.ExternalID == "" {
		return model.Listing{}, false
	}

	for _, dt := range findAll(card, isElement("dt")) {
		dd := nextElementSibling(dt)
		if dd == nil || dd.Data != "dd" {
			continue
		}
		label := strings.TrimSpace(textContent(dt))
		value := strings.Join(strings.Fields(textContent(dd)), " ")

		switch {
		case strings.Contains(label, "Adresse"):
			l.Address = value
		case strings.Contains(label, "Wohnfläche"):
			l.SizeSqm = parseFloat(normalizeGermanNumber(value))
		case strings.Contains(label, "Kaltmiete"):
			l.PriceCold = parseFloat(normalizeGermanNumber(value))
		case strings.Contains(label, "Gesamtmiete"):
			l.PriceTotal = parseFloat(normalizeGermanNumber(value))
		case strings.Contains(label, "Zimmeranzahl"):
			l.Rooms = parseFloat(normalizeGermanNumber(value))
		case strings.Contains(label, "WBS"):
			if strings.Contains(strings.ToLower(value), "nicht erforderlich") {
				l.WBS = model.WBSNotRequired
			} else {
				l.WBS = model.WBSRequired
			}
		}
	}

	return l, true
}

// --- HTML traversal helpers ---

func findAll(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func isElement(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func nextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}
