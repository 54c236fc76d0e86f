package filter

import (
	"testing"

	"github.com/wohnblick/wohnblick/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func listing(price, sqm, rooms *float64, wbs model.WBSStatus, borough string) model.Listing {
	return model.Listing{
		Source:     "test",
		ExternalID: "https://example.com/1",
		Borough:    borough,
		PriceTotal: price,
		SizeSqm:    sqm,
		Rooms:      rooms,
		WBS:        wbs,
	}
}

func TestRules_Accept(t *testing.T) {
	tests := []struct {
		name    string
		rules   Rules
		listing model.Listing
		want    bool
	}{
		{
			name:    "disabled rules accept everything",
			rules:   Rules{Enabled: false, Price: RangeRule{Max: floatPtr(1)}},
			listing: listing(floatPtr(9999), nil, nil, model.WBSRequired, ""),
			want:    true,
		},
		{
			name:    "price at max boundary accepted",
			rules:   Rules{Enabled: true, Price: RangeRule{Max: floatPtr(1500)}},
			listing: listing(floatPtr(1500), nil, nil, model.WBSUnknown, ""),
			want:    true,
		},
		{
			name:    "price just under max accepted",
			rules:   Rules{Enabled: true, Price: RangeRule{Max: floatPtr(1500)}},
			listing: listing(floatPtr(1499.99), nil, nil, model.WBSUnknown, ""),
			want:    true,
		},
		{
			name:    "price just over max rejected",
			rules:   Rules{Enabled: true, Price: RangeRule{Max: floatPtr(1500)}},
			listing: listing(floatPtr(1500.01), nil, nil, model.WBSUnknown, ""),
			want:    false,
		},
		{
			name:    "unbounded range accepts unknown price",
			rules:   Rules{Enabled: true},
			listing: listing(nil, nil, nil, model.WBSUnknown, ""),
			want:    true,
		},
		{
			name:    "unknown value passes a bounded range",
			rules:   Rules{Enabled: true, Sqm: RangeRule{Min: floatPtr(50)}},
			listing: listing(nil, nil, nil, model.WBSUnknown, ""),
			want:    true,
		},
		{
			name:    "cold rent used when warm rent unknown",
			rules:   Rules{Enabled: true, Price: RangeRule{Max: floatPtr(1000)}},
			listing: model.Listing{PriceCold: floatPtr(1100)},
			want:    false,
		},
		{
			name:    "empty borough list never rejects",
			rules:   Rules{Enabled: true, Boroughs: nil},
			listing: listing(nil, nil, nil, model.WBSUnknown, "Spandau"),
			want:    true,
		},
		{
			name:    "borough in allowed set accepted",
			rules:   Rules{Enabled: true, Boroughs: []string{"Mitte", "Pankow"}},
			listing: listing(nil, nil, nil, model.WBSUnknown, "pankow"),
			want:    true,
		},
		{
			name:    "borough outside allowed set rejected",
			rules:   Rules{Enabled: true, Boroughs: []string{"Mitte"}},
			listing: listing(nil, nil, nil, model.WBSUnknown, "Spandau"),
			want:    false,
		},
		{
			name:    "unresolved borough passes",
			rules:   Rules{Enabled: true, Boroughs: []string{"Mitte"}},
			listing: listing(nil, nil, nil, model.WBSUnknown, ""),
			want:    true,
		},
		{
			name:    "wbs accept-all keeps required listings",
			rules:   Rules{Enabled: true, WBS: WBSRuleAcceptAll},
			listing: listing(nil, nil, nil, model.WBSRequired, ""),
			want:    true,
		},
		{
			name:    "wbs reject-required drops required listings",
			rules:   Rules{Enabled: true, WBS: WBSRuleRejectRequired},
			listing: listing(nil, nil, nil, model.WBSRequired, ""),
			want:    false,
		},
		{
			name:    "wbs reject-required keeps unknown status",
			rules:   Rules{Enabled: true, WBS: WBSRuleRejectRequired},
			listing: listing(nil, nil, nil, model.WBSUnknown, ""),
			want:    true,
		},
		{
			name: "full criteria accepted",
			rules: Rules{
				Enabled: true,
				Price:   RangeRule{Max: floatPtr(1500)},
				Sqm:     RangeRule{Min: floatPtr(50), Max: floatPtr(100)},
				Rooms:   RangeRule{Min: floatPtr(2)},
				WBS:     WBSRuleRejectRequired,
			},
			listing: listing(floatPtr(1200), floatPtr(60), floatPtr(2), model.WBSNotRequired, ""),
			want:    true,
		},
		{
			name: "full criteria rejected on wbs alone",
			rules: Rules{
				Enabled: true,
				Price:   RangeRule{Max: floatPtr(1500)},
				Sqm:     RangeRule{Min: floatPtr(50), Max: floatPtr(100)},
				Rooms:   RangeRule{Min: floatPtr(2)},
				WBS:     WBSRuleRejectRequired,
			},
			listing: listing(floatPtr(1200), floatPtr(60), floatPtr(2), model.WBSRequired, ""),
			want:    false,
		},
		{
			name:    "rooms below min rejected",
			rules:   Rules{Enabled: true, Rooms: RangeRule{Min: floatPtr(2)}},
			listing: listing(nil, nil, floatPtr(1), model.WBSUnknown, ""),
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rules.Accept(tt.listing)
			if got != tt.want {
				t.Errorf("Accept() = %v, want %v", got, tt.want)
			}
		})
	}
}
