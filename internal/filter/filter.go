package filter

import (
	"strings"

	"github.com/wohnblick/wohnblick/internal/model"
)

// WBSRule is the tri-state WBS filter configuration. "No rule" and "accept
// all explicitly" behave identically but stay distinguishable in config.
type WBSRule int

const (
	WBSRuleNone WBSRule = iota
	WBSRuleAcceptAll
	WBSRuleRejectRequired
)

// RangeRule bounds an ordered listing attribute. A nil bound is unbounded.
// An unknown attribute value passes: a listing is never rejected solely for
// missing data.
type RangeRule struct {
	Min *float64
	Max *float64
}

func (r RangeRule) pass(v *float64) bool {
	if v == nil {
		return true
	}
	if r.Min != nil && *v < *r.Min {
		return false
	}
	if r.Max != nil && *v > *r.Max {
		return false
	}
	return true
}

// Rules evaluates listings against the user's acceptance criteria.
// All rules are ANDed; when Enabled is false every listing is accepted.
type Rules struct {
	Enabled  bool
	Price    RangeRule
	Sqm      RangeRule
	Rooms    RangeRule
	Boroughs []string // allowed boroughs; empty = no borough filtering
	WBS      WBSRule
}

// Accept returns true if the listing passes every configured rule.
func (r Rules) Accept(l model.Listing) bool {
	if !r.Enabled {
		return true
	}
	return r.passPrice(l) && r.Sqm.pass(l.SizeSqm) && r.Rooms.pass(l.Rooms) &&
		r.passBorough(l) && r.passWBS(l)
}

// passPrice checks the warm rent, falling back to cold rent when the source
// only exposes the latter.
func (r Rules) passPrice(l model.Listing) bool {
	price := l.PriceTotal
	if price == nil {
		price = l.PriceCold
	}
	return r.Price.pass(price)
}

func (r Rules) passBorough(l model.Listing) bool {
	if len(r.Boroughs) == 0 {
		return true
	}
	// Unresolvable borough passes; the alert is more useful than the gap.
	if l.Borough == "" {
		return true
	}
	// A zip straddling borough boundaries yields "Mitte / Pankow"; any allowed
	// candidate is enough.
	for _, candidate := range strings.Split(l.Borough, "/") {
		for _, allowed := range r.Boroughs {
			if strings.EqualFold(strings.TrimSpace(allowed), strings.TrimSpace(candidate)) {
				return true
			}
		}
	}
	return false
}

func (r Rules) passWBS(l model.Listing) bool {
	if r.WBS != WBSRuleRejectRequired {
		return true
	}
	return l.WBS != model.WBSRequired
}
