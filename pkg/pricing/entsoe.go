package pricing

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/heatpilot/heatpilot/pkg/common"
	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// ENTSOE implements the Provider interface using the ENTSO-E transparency
// platform day-ahead price document (A44). Prices are published per bidding
// zone in EUR/MWh and converted to major units per kWh.
type ENTSOE struct {
	apiURL string
	apiKey string
	client *http.Client

	mu            sync.Mutex
	area          string
	currency      string
	lastFetchTime time.Time
	cachedPrices  []types.Price
}

// configuredENTSOE sets up flags for the ENTSO-E provider and returns the
// instance.
func configuredENTSOE() *ENTSOE {
	e := &ENTSOE{
		client:   common.HTTPClient(30 * time.Second),
		currency: "EUR",
	}
	apiURL := lflag.String("entsoe-api-url", "https://web-api.tp.entsoe.eu/api", "URL for the ENTSO-E transparency API")
	apiKey := lflag.String("entsoe-api-key", "", "Security token for the ENTSO-E transparency API")

	lflag.Do(func() {
		e.apiURL = *apiURL
		e.apiKey = *apiKey
	})

	return e
}

// Validate ensures the configuration is valid.
func (e *ENTSOE) Validate() error {
	if e.apiURL == "" {
		return fmt.Errorf("entsoe-api-url is required")
	}
	if _, err := url.Parse(e.apiURL); err != nil {
		return fmt.Errorf("failed to parse entsoe url (%s): %w", e.apiURL, err)
	}
	if e.apiKey == "" {
		return fmt.Errorf("entsoe-api-key is required")
	}
	return nil
}

// ApplySettings picks up the bidding zone and quote currency.
func (e *ENTSOE) ApplySettings(_ context.Context, settings types.Settings) error {
	if settings.PriceArea == "" {
		return fmt.Errorf("priceArea (bidding zone EIC code) is required for the entsoe provider")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.area != settings.PriceArea {
		e.area = settings.PriceArea
		// force a refetch for the new zone
		e.lastFetchTime = time.Time{}
		e.cachedPrices = nil
	}
	if settings.Currency != "" {
		e.currency = settings.Currency
	}
	return nil
}

// marketDocument mirrors the subset of the A44 publication document we
// consume.
type marketDocument struct {
	TimeSeries []struct {
		Currency string `xml:"currency_Unit.name"`
		Period   []struct {
			TimeInterval struct {
				Start string `xml:"start"`
			} `xml:"timeInterval"`
			Resolution string `xml:"resolution"`
			Point      []struct {
				Position int     `xml:"position"`
				Amount   float64 `xml:"price.amount"`
			} `xml:"Point"`
		} `xml:"Period"`
	} `xml:"TimeSeries"`
}

// fetchPrices retrieves the day-ahead series around now.
// It caches the result for 30 minutes; day-ahead data only changes once a
// day anyway.
func (e *ENTSOE) fetchPrices(ctx context.Context) ([]types.Price, error) {
	now := time.Now().UTC()

	e.mu.Lock()
	area := e.area
	if !e.lastFetchTime.IsZero() && now.Sub(e.lastFetchTime) < 30*time.Minute {
		prices := e.cachedPrices
		e.mu.Unlock()
		return prices, nil
	}
	e.mu.Unlock()

	if area == "" {
		return nil, fmt.Errorf("no bidding zone configured")
	}

	start := now.Add(-6 * time.Hour)
	end := now.Add(36 * time.Hour)

	u, err := url.Parse(e.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	params := url.Values{}
	params.Set("documentType", "A44")
	params.Set("in_Domain", area)
	params.Set("out_Domain", area)
	params.Set("periodStart", start.Format("200601021504"))
	params.Set("periodEnd", end.Format("200601021504"))
	params.Set("securityToken", e.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetching day-ahead prices from entsoe", slog.String("area", area))

	resp, err := e.client.Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch prices", slog.Any("error", err))
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// ENTSO-E returns an Acknowledgement document with details on
		// errors but the status code is all we need to act on.
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("entsoe api returned status: %d", resp.StatusCode)
	}

	var doc marketDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode entsoe response: %w", err)
	}

	prices, err := e.documentToPrices(ctx, doc)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cachedPrices = prices
	e.lastFetchTime = now
	e.mu.Unlock()

	return prices, nil
}

// documentToPrices flattens the publication document into hourly prices.
// Sub-hourly resolutions are averaged into hourly buckets; sparse points
// (curve type A03) fill forward from the previous position.
func (e *ENTSOE) documentToPrices(ctx context.Context, doc marketDocument) ([]types.Price, error) {
	e.mu.Lock()
	currency := e.currency
	e.mu.Unlock()

	hours := make(map[int64]*hourlyData)

	for _, ts := range doc.TimeSeries {
		if ts.Currency != "" && ts.Currency != currency {
			log.Ctx(ctx).WarnContext(ctx, "entsoe series currency differs from configured currency",
				slog.String("series", ts.Currency),
				slog.String("configured", currency),
			)
		}
		for _, period := range ts.Period {
			periodStart, err := time.Parse("2006-01-02T15:04Z", period.TimeInterval.Start)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "failed to parse entsoe period start",
					slog.String("value", period.TimeInterval.Start), slog.Any("error", err))
				continue
			}
			var step time.Duration
			switch period.Resolution {
			case "PT60M":
				step = time.Hour
			case "PT30M":
				step = 30 * time.Minute
			case "PT15M":
				step = 15 * time.Minute
			default:
				log.Ctx(ctx).WarnContext(ctx, "skipping unsupported entsoe resolution",
					slog.String("resolution", period.Resolution))
				continue
			}

			points := period.Point
			sort.Slice(points, func(i, j int) bool { return points[i].Position < points[j].Position })

			lastPos := 0
			lastAmount := 0.0
			for _, pt := range points {
				// fill the gap left by omitted repeating positions
				for pos := lastPos + 1; pos < pt.Position; pos++ {
					addHourly(hours, periodStart, step, pos, lastAmount)
				}
				addHourly(hours, periodStart, step, pt.Position, pt.Amount)
				lastPos = pt.Position
				lastAmount = pt.Amount
			}
		}
	}

	var prices []types.Price
	for hourStartUnix, h := range hours {
		hourStart := time.Unix(hourStartUnix, 0).UTC()
		prices = append(prices, types.Price{
			Provider: "entsoe",
			TSStart:  hourStart,
			TSEnd:    hourStart.Add(time.Hour),
			// EUR/MWh to major units per kWh
			PerKWH:   h.sum / float64(h.count) / 1000.0,
			Currency: currency,
		})
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].TSStart.Before(prices[j].TSStart) })

	log.Ctx(ctx).DebugContext(ctx, "parsed entsoe prices", slog.Int("count", len(prices)))
	return prices, nil
}

func addHourly(hours map[int64]*hourlyData, periodStart time.Time, step time.Duration, position int, amount float64) {
	ts := periodStart.Add(time.Duration(position-1) * step)
	key := ts.Truncate(time.Hour).Unix()
	h, ok := hours[key]
	if !ok {
		h = &hourlyData{}
		hours[key] = h
	}
	h.sum += amount
	h.count++
}

type hourlyData struct {
	sum   float64
	count int
}

// CurrentPrice returns the price for the interval containing now.
func (e *ENTSOE) CurrentPrice(ctx context.Context) (types.Price, error) {
	prices, err := e.fetchPrices(ctx)
	if err != nil {
		return types.Price{}, err
	}

	now := time.Now()
	for _, p := range prices {
		if p.Contains(now) {
			log.Ctx(ctx).DebugContext(ctx, "got current price",
				slog.Float64("price", p.PerKWH),
				slog.Time("ts", p.TSStart),
			)
			return p, nil
		}
	}
	return types.Price{}, fmt.Errorf("no price covering the current hour (have %d prices)", len(prices))
}

// Forecast returns the known upcoming prices.
func (e *ENTSOE) Forecast(ctx context.Context) ([]types.Price, error) {
	prices, err := e.fetchPrices(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var out []types.Price
	for _, p := range prices {
		if p.TSEnd.After(now) {
			out = append(out, p)
		}
	}
	return out, nil
}
