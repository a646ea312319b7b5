package routing

import "strings"

// Rule maps a set of destination countries to the provider that specializes
// in that region.
type Rule struct {
	Countries []string
	Provider  string
}

// Config holds the routing table and the canonical fallback order.
type Config struct {
	// Rules are evaluated top to bottom; the first match wins.
	Rules []Rule

	// DefaultProvider is the primary choice when no rule matches.
	DefaultProvider string

	// FallbackOrder is the canonical ordering of every known provider. The
	// candidate list is always a permutation of this set.
	FallbackOrder []string
}

// DefaultConfig returns the built-in regional routing table.
func DefaultConfig() Config {
	return Config{
		Rules: []Rule{
			// Continental Europe and China clear through Adyen.
			{Countries: []string{"nl", "de", "se", "no", "dk", "fi", "at", "be", "cn"}, Provider: "adyen"},
			// North America, UK, western/southern Europe, Australia, Japan.
			{Countries: []string{"us", "ca", "gb", "uk", "fr", "es", "it", "au", "jp"}, Provider: "stripe"},
			// Eastern Europe and Asian payout corridors.
			{Countries: []string{"pl", "cz", "hu", "ro", "sg", "hk", "in"}, Provider: "wise"},
			// LatAm and Africa.
			{Countries: []string{"br", "ar", "mx", "co", "cl", "za", "ke", "ng"}, Provider: "rapyd"},
		},
		DefaultProvider: "stripe",
		FallbackOrder:   []string{"stripe", "adyen", "rapyd", "wise"},
	}
}

// Service is the routing decision engine. Decide is pure and total: it never
// fails, touches no network or storage, and identical input always yields the
// identical ordered candidate list.
type Service struct {
	config Config
	// byCountry is the flattened rule table for O(1) lookup.
	byCountry map[string]string
}

// NewService creates a routing service from config.
func NewService(config Config) *Service {
	byCountry := make(map[string]string)
	for _, rule := range config.Rules {
		for _, c := range rule.Countries {
			// First rule wins on duplicate countries.
			if _, seen := byCountry[c]; !seen {
				byCountry[c] = rule.Provider
			}
		}
	}
	return &Service{config: config, byCountry: byCountry}
}

// Decide maps request attributes to an ordered, non-empty candidate list.
// The first element is the primary choice; the rest is every other known
// provider in canonical fallback order, so a full fallback sweep is always
// possible. Unknown or empty countries fall to the default provider.
// Currency is part of the decision contract but no current rule reads it;
// only country selects the primary today.
func (s *Service) Decide(country, currency string) []string {
	primary := s.config.DefaultProvider
	if p, ok := s.byCountry[strings.ToLower(strings.TrimSpace(country))]; ok {
		primary = p
	}

	candidates := make([]string, 0, len(s.config.FallbackOrder))
	candidates = append(candidates, primary)
	for _, p := range s.config.FallbackOrder {
		if p != primary {
			candidates = append(candidates, p)
		}
	}
	return candidates
}

// Providers returns the full known provider set in canonical order.
func (s *Service) Providers() []string {
	out := make([]string, len(s.config.FallbackOrder))
	copy(out, s.config.FallbackOrder)
	return out
}
