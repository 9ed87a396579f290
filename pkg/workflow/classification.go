package workflow

// Classification is the 4-layer analysis of a user's problem.
type Classification struct {
	Symptoms         []string `json:"symptoms"`
	Challenges       []string `json:"challenges"`
	PrimaryDomain    Domain   `json:"primary_domain"`
	SecondaryDomains []Domain `json:"secondary_domains"`
	Intent           Intent   `json:"intent"`
	Confidence       float64  `json:"confidence"`
}

// DefaultClassification is used when classification is unavailable.
func DefaultClassification() Classification {
	return Classification{
		Symptoms:         []string{},
		Challenges:       []string{},
		SecondaryDomains: []Domain{},
		Intent:           Explore,
	}
}

// Domains returns the primary and secondary domains, deduplicated, skipping
// empty or invalid values. The result is suitable as a search filter.
func (c Classification) Domains() []Domain {
	seen := make(map[Domain]bool)
	var out []Domain
	add := func(d Domain) {
		if d.Valid() && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	add(c.PrimaryDomain)
	for _, d := range c.SecondaryDomains {
		add(d)
	}
	return out
}
