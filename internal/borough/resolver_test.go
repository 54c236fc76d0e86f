package borough

import "testing"

func testResolver() *Resolver {
	return New(map[string][]string{
		"10115": {"Mitte"},
		"10435": {"Pankow", "Mitte"},
	})
}

func TestFromAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    []string
	}{
		{"zip in full address", "Invalidenstraße 12, 10115 Berlin", []string{"Mitte"}},
		{"zip on boundary maps to both", "Kastanienallee 1, 10435 Berlin", []string{"Pankow", "Mitte"}},
		{"unknown zip", "Somewhere 5, 99999 Berlin", nil},
		{"no zip at all", "Kastanienallee 1, Berlin", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testResolver().FromAddress(tt.address)
			if len(got) != len(tt.want) {
				t.Fatalf("FromAddress(%q) = %v, want %v", tt.address, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FromAddress(%q)[%d] = %q, want %q", tt.address, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if got := Format([]string{"Pankow", "Mitte"}); got != "Pankow / Mitte" {
		t.Errorf("Format = %q", got)
	}
}
