package apply

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/wohnblick/wohnblick/internal/model"
)

// Ensure WBMApplier implements model.Applier.
var _ model.Applier = (*WBMApplier)(nil)

const wbmURLPrefix = "https://www.wbm.de/"

// WBMApplier submits the contact form on a WBM listing's detail page. The form
// is a TYPO3 Powermail form: hidden fields carry the submission token and must
// be echoed back verbatim, visible fields are matched by name substring.
type WBMApplier struct {
	profile Profile
	client  *http.Client
	logger  *slog.Logger
}

func NewWBMApplier(profile Profile, client *http.Client, logger *slog.Logger) *WBMApplier {
	return &WBMApplier{profile: profile, client: client, logger: logger}
}

func (a *WBMApplier) Name() string { return "wbm" }

func (a *WBMApplier) CanApply(l model.Listing) bool {
	return strings.HasPrefix(l.ExternalID, wbmURLPrefix)
}

// Exclusive is false: plain HTTP submissions can run concurrently.
func (a *WBMApplier) Exclusive() bool { return false }

// Apply fetches the detail page, extracts the contact form, fills it from the
// profile and posts it. The response body must contain a confirmation phrase
// for the attempt to count as submitted.
func (a *WBMApplier) Apply(ctx context.Context, l model.Listing) model.ApplyResult {
	form, err := a.fetchForm(ctx, l.ExternalID)
	if err != nil {
		return classify(err)
	}

	values := a.fillForm(form)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, form.action, strings.NewReader(values.Encode()))
	if err != nil {
		return model.ApplyResult{Outcome: model.OutcomeTerminal, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", l.ExternalID)

	resp, err := a.client.Do(req)
	if err != nil {
		return model.ApplyResult{Outcome: model.OutcomeRetryable, Message: fmt.Sprintf("submit: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return model.ApplyResult{Outcome: model.OutcomeRetryable, Message: fmt.Sprintf("submit: status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return model.ApplyResult{Outcome: model.OutcomeTerminal, Message: fmt.Sprintf("submit: status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.ApplyResult{Outcome: model.OutcomeRetryable, Message: fmt.Sprintf("read confirmation: %v", err)}
	}

	if !confirmsSubmission(string(body)) {
		return model.ApplyResult{Outcome: model.OutcomeTerminal, Message: "no confirmation phrase in response"}
	}
	return model.ApplyResult{Outcome: model.OutcomeSubmitted}
}

// contactForm is the parsed Powermail form: its POST target, the hidden
// fields to echo back, and the names of the visible inputs.
type contactForm struct {
	action     string
	hidden     url.Values
	fieldNames []string
	radios     map[string][]string // name -> offered values
	checkboxes map[string]string   // name -> value
}

func (a *WBMApplier) fetchForm(ctx context.Context, pageURL string) (*contactForm, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch detail page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{StatusCode: resp.StatusCode, Err: fmt.Errorf("detail page status %d", resp.StatusCode)}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	formNode := findForm(doc)
	if formNode == nil {
		return nil, fmt.Errorf("no contact form on page")
	}

	form := &contactForm{
		action:     resolveAction(pageURL, attrVal(formNode, "action")),
		hidden:     url.Values{},
		radios:     map[string][]string{},
		checkboxes: map[string]string{},
	}

	walkInputs(formNode, func(n *html.Node) {
		name := attrVal(n, "name")
		if name == "" {
			return
		}
		switch n.Data {
		case "input":
			switch attrVal(n, "type") {
			case "hidden":
				form.hidden.Add(name, attrVal(n, "value"))
			case "radio":
				form.radios[name] = append(form.radios[name], attrVal(n, "value"))
			case "checkbox":
				form.checkboxes[name] = attrVal(n, "value")
			default:
				form.fieldNames = append(form.fieldNames, name)
			}
		case "textarea", "select":
			form.fieldNames = append(form.fieldNames, name)
		}
	})

	return form, nil
}

// fillForm builds the POST body: hidden fields verbatim, visible fields
// matched to profile data by name substring, consent checkboxes ticked.
func (a *WBMApplier) fillForm(form *contactForm) url.Values {
	values := url.Values{}
	for k, vs := range form.hidden {
		for _, v := range vs {
			values.Add(k, v)
		}
	}

	for _, name := range form.fieldNames {
		if v, ok := a.valueForField(name); ok {
			values.Set(name, v)
		}
	}

	for name, offered := range form.radios {
		lower := fieldKey(name)
		switch {
		case strings.Contains(lower, "anrede"):
			values.Set(name, pickRadio(offered, a.profile.Salutation))
		case strings.Contains(lower, "wbs"):
			want := "nein"
			if a.profile.HasWBS {
				want = "ja"
			}
			values.Set(name, pickRadio(offered, want))
		}
	}

	for name, value := range form.checkboxes {
		if strings.Contains(fieldKey(name), "datenschutz") {
			if value == "" {
				value = "1"
			}
			values.Set(name, value)
		}
	}

	return values
}

// fieldKey reduces a Powermail field name like
// "tx_powermail_pi1[field][vorname]" to its innermost segment, so the plugin
// prefix never participates in substring matching.
func fieldKey(name string) string {
	lower := strings.ToLower(name)
	if i := strings.LastIndex(lower, "["); i >= 0 {
		lower = strings.TrimSuffix(lower[i+1:], "]")
	}
	return lower
}

func (a *WBMApplier) valueForField(name string) (string, bool) {
	lower := fieldKey(name)
	switch {
	case strings.Contains(lower, "vorname"):
		return a.profile.FirstName, true
	case strings.Contains(lower, "name"):
		return a.profile.LastName, true
	case strings.Contains(lower, "mail"):
		return a.profile.Email, true
	case strings.Contains(lower, "telefon"), strings.Contains(lower, "phone"):
		return a.profile.Phone, true
	case strings.Contains(lower, "strasse"), strings.Contains(lower, "adresse"):
		return a.profile.Street, true
	case strings.Contains(lower, "plz"):
		return a.profile.Zip, true
	case strings.Contains(lower, "ort"), strings.Contains(lower, "stadt"):
		return a.profile.City, true
	}
	return "", false
}

// pickRadio chooses the offered value matching want, falling back to the first.
func pickRadio(offered []string, want string) string {
	for _, v := range offered {
		if strings.EqualFold(v, want) || strings.Contains(strings.ToLower(v), strings.ToLower(want)) {
			return v
		}
	}
	if len(offered) > 0 {
		return offered[0]
	}
	return want
}

func confirmsSubmission(body string) bool {
	for _, marker := range []string{"Vielen Dank", "versendet", "erfolgreich"} {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// classify turns a pre-submission error into an attempt result.
func classify(err error) model.ApplyResult {
	if httpErr, ok := err.(*model.HTTPError); ok {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500 {
			return model.ApplyResult{Outcome: model.OutcomeRetryable, Message: err.Error()}
		}
		// A 404 detail page means the listing is gone.
		return model.ApplyResult{Outcome: model.OutcomeTerminal, Message: err.Error()}
	}
	return model.ApplyResult{Outcome: model.OutcomeRetryable, Message: err.Error()}
}

// --- form parsing helpers ---

func findForm(doc *html.Node) *html.Node {
	var powermail, first *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "form" {
			if first == nil {
				first = n
			}
			id := strings.ToLower(attrVal(n, "id") + " " + attrVal(n, "class"))
			if powermail == nil && strings.Contains(id, "powermail") {
				powermail = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if powermail != nil {
		return powermail
	}
	return first
}

func walkInputs(form *html.Node, fn func(*html.Node)) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input", "textarea", "select":
				fn(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(form)
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolveAction(pageURL, action string) string {
	if action == "" {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return action
	}
	ref, err := url.Parse(action)
	if err != nil {
		return action
	}
	return base.ResolveReference(ref).String()
}
