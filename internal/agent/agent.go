// Package agent defines the contract between the orchestration engine and
// the specialized data agents. Each agent owns one data domain and turns a
// natural-language sub-query into a finding; how it talks to its upstream
// service is its own business.
package agent

import "context"

// Domain identifies the data category an agent is responsible for.
type Domain string

const (
	DomainAnalytics Domain = "analytics" // Behavioral traffic data. Requires a property ID scope.
	DomainSEO       Domain = "seo"       // Technical audit data. No scope required.
)

// KnownDomains lists every domain the engine can route to, in canonical order.
func KnownDomains() []Domain {
	return []Domain{DomainAnalytics, DomainSEO}
}

// Valid reports whether d names a known domain.
func (d Domain) Valid() bool {
	return d == DomainAnalytics || d == DomainSEO
}

// Finding is an agent's returned evidence for a sub-query.
type Finding struct {
	Text string         // Natural-language summary.
	Data map[string]any // Optional structured record from the upstream service.
}

// Agent is a specialized data-fetching agent.
type Agent interface {
	// Invoke answers a natural-language sub-query, optionally scoped to a
	// specific dataset (e.g. an analytics property ID).
	Invoke(ctx context.Context, subquery, scopeID string) (*Finding, error)
	// Domain returns the data domain this agent serves.
	Domain() Domain
}
