// Package outage tracks the utility's planned power-cut schedule and judges
// battery survival across upcoming windows.
package outage

import "fmt"

// Window is one scheduled cut for "today" in local time-of-day. An EndHour
// of 24 means end of day.
type Window struct {
	StartHour int `json:"start_hour"`
	StartMin  int `json:"start_min"`
	EndHour   int `json:"end_hour"`
	EndMin    int `json:"end_min"`
}

// Provider fetches today's outage windows from one utility. Implementations
// return an error on network or parse failure; they never panic across this
// boundary. An error leaves the previously fetched schedule in place.
type Provider interface {
	FetchWindows() ([]Window, error)
}

// ProviderConfig selects and parameterizes a provider.
type ProviderConfig struct {
	Name    string
	Group   string
	Windows []Window // static provider only
}

// NewProvider builds a provider by configured name. "none" disables the
// schedule entirely and returns nil. Region-specific scraper providers plug
// in here; the static provider covers fixed published schedules.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "none", "":
		return nil, nil
	case "static":
		return &StaticProvider{windows: cfg.Windows}, nil
	}
	return nil, fmt.Errorf("unknown outage provider %q", cfg.Name)
}

// StaticProvider serves a fixed window list from configuration, for regions
// whose schedule is published once and rarely changes.
type StaticProvider struct {
	windows []Window
}

func (p *StaticProvider) FetchWindows() ([]Window, error) {
	out := make([]Window, len(p.windows))
	copy(out, p.windows)
	return out, nil
}
