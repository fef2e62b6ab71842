// Package catalog is a read-through accessor to the external product service.
//
// Every call either returns upstream data or, on any failure, the embedded fallback
// set flagged as degraded. Errors never leave this package.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Skotchmaster/storefront/internal/logging"
)

const maxBodyBytes = 4 << 20

type Product struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	Thumbnail   string  `json:"thumbnail"`
}

// Filter selects a listing. Category takes precedence over Query.
type Filter struct {
	Query    string
	Category string
	// Page is 1-based and only applies to the unfiltered listing.
	Page int
}

type Listing struct {
	Products []Product `json:"products"`
	Degraded bool      `json:"degraded"`
}

// FallbackRecorder is notified every time a fallback result is served.
type FallbackRecorder interface {
	CatalogFallback(op string)
}

type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
	Breaker  BreakerConfig
}

type Gateway struct {
	baseURL  string
	timeout  time.Duration
	pageSize int
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	fallback []Product
	recorder FallbackRecorder
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog returned status %d", e.code)
}

func NewGateway(cfg Config, logger *slog.Logger, recorder FallbackRecorder) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog: empty base url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}

	fallback, err := FallbackProducts()
	if err != nil {
		return nil, err
	}

	bc := cfg.Breaker
	settings := gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		// A 4xx means the catalog is up and answered; only outages count against it.
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.code < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Gateway{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		timeout:  cfg.Timeout,
		pageSize: cfg.PageSize,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker:  gobreaker.NewCircuitBreaker[[]byte](settings),
		fallback: fallback,
		recorder: recorder,
	}, nil
}

func (g *Gateway) ListProducts(ctx context.Context, f Filter) Listing {
	path, query := g.listRequest(f)

	var payload struct {
		Products []Product `json:"products"`
	}
	if err := g.fetch(ctx, path, query, &payload); err != nil {
		g.degrade(ctx, "list", err)
		return Listing{Products: filterProducts(g.fallback, f), Degraded: true}
	}
	if payload.Products == nil {
		payload.Products = []Product{}
	}
	return Listing{Products: payload.Products}
}

// GetProduct returns the requested product. When degraded it returns the fallback entry
// with that id, or the first fallback entry if none matches.
func (g *Gateway) GetProduct(ctx context.Context, id int) (Product, bool) {
	var p Product
	err := g.fetch(ctx, fmt.Sprintf("/products/%d", id), nil, &p)
	if err == nil && p.ID == 0 {
		err = errors.New("catalog returned a product without id")
	}
	if err != nil {
		g.degrade(ctx, "get", err)
		return g.fallbackProduct(id), true
	}
	return p, false
}

func (g *Gateway) listRequest(f Filter) (string, url.Values) {
	switch {
	case f.Category != "":
		return "/products/category/" + url.PathEscape(f.Category), nil
	case f.Query != "":
		return "/products/search", url.Values{"q": {f.Query}}
	default:
		skip, limit := pageWindow(f.Page, g.pageSize)
		q := url.Values{"limit": {fmt.Sprint(limit)}}
		if skip > 0 {
			q.Set("skip", fmt.Sprint(skip))
		}
		return "/products", q
	}
}

func (g *Gateway) fetch(ctx context.Context, path string, query url.Values, dst any) error {
	target := g.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	body, err := g.breaker.Execute(func() ([]byte, error) {
		reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			return nil, &statusError{code: resp.StatusCode}
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (g *Gateway) degrade(ctx context.Context, op string, err error) {
	logging.FromContext(ctx).Warn("catalog_degraded", "op", op, "reason", "serving fallback products", "error", err)
	if g.recorder != nil {
		g.recorder.CatalogFallback(op)
	}
}

func (g *Gateway) fallbackProduct(id int) Product {
	for _, p := range g.fallback {
		if p.ID == id {
			return p
		}
	}
	return g.fallback[0]
}

// filterProducts applies f to the fallback set. An empty result yields the whole set so
// a degraded page is never blank.
func filterProducts(products []Product, f Filter) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		switch {
		case f.Category != "":
			if strings.EqualFold(p.Category, f.Category) {
				out = append(out, p)
			}
		case f.Query != "":
			if strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Query)) {
				out = append(out, p)
			}
		default:
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, products...)
	}
	return out
}
