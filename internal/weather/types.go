package weather

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Provider interface {
	Get(ctx context.Context) (*Data, error)
}

type Data struct {
	Temperature   float64   `json:"temperature"`
	WeatherCode   int       `json:"weather_code"`
	Condition     string    `json:"condition"`
	Description   string    `json:"description"`
	TempMax       float64   `json:"temp_max"`
	TempMin       float64   `json:"temp_min"`
	Precipitation float64   `json:"precipitation"`
	Sunrise       time.Time `json:"sunrise"`
	Sunset        time.Time `json:"sunset"`
	LastUpdated   time.Time `json:"last_updated"`
}

func (d *Data) IsDaylight(at time.Time) bool {
	if d == nil || d.Sunrise.IsZero() || d.Sunset.IsZero() {
		return false
	}
	return at.After(d.Sunrise) && at.Before(d.Sunset)
}

// Poller refreshes weather in the background and caches the last good
// result. Fetch failures keep the previous data.
type Poller struct {
	provider Provider
	interval time.Duration

	mu   sync.RWMutex
	data *Data
}

func NewPoller(p Provider, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Poller{provider: p, interval: interval}
}

func (p *Poller) Start(ctx context.Context) {
	p.refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	data, err := p.provider.Get(reqCtx)
	if err != nil {
		logrus.Warnf("weather refresh failed: %v", err)
		return
	}
	p.mu.Lock()
	p.data = data
	p.mu.Unlock()
}

// Latest returns the cached weather, nil before the first successful fetch.
func (p *Poller) Latest() *Data {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data
}
