package borough

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var zipRegex = regexp.MustCompile(`\b(\d{5})\b`)

// Resolver maps Berlin zip codes to borough names. Some zip codes straddle
// borough boundaries, so a zip may map to more than one borough.
type Resolver struct {
	zipToBoroughs map[string][]string
}

// Load reads a zip-to-borough JSON map ({"10115": ["Mitte"], ...}).
func Load(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read borough map: %w", err)
	}
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse borough map: %w", err)
	}
	return &Resolver{zipToBoroughs: m}, nil
}

// New builds a resolver from an in-memory map.
func New(m map[string][]string) *Resolver {
	return &Resolver{zipToBoroughs: m}
}

// FromAddress extracts the zip code from an address and returns the matching
// boroughs, or nil if the address has no known zip.
func (r *Resolver) FromAddress(address string) []string {
	match := zipRegex.FindStringSubmatch(address)
	if match == nil {
		return nil
	}
	return r.zipToBoroughs[match[1]]
}

// Format joins borough candidates for display ("Mitte / Pankow").
func Format(boroughs []string) string {
	return strings.Join(boroughs, " / ")
}
