package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/account"
	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/catalog"
	"github.com/Skotchmaster/storefront/internal/checkout"
	"github.com/Skotchmaster/storefront/internal/db/dbtest"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/flash"
	"github.com/Skotchmaster/storefront/internal/identity"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/internal/tokens"
	"github.com/Skotchmaster/storefront/internal/validate"
)

var (
	lipstick = catalog.Product{ID: 1, Title: "Lipstick", Price: 100, Category: "beauty"}
	powder   = catalog.Product{ID: 2, Title: "Powder", Price: 50, Category: "beauty"}
)

type fakeCatalog struct {
	products map[int]catalog.Product
	degraded bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[int]catalog.Product{lipstick.ID: lipstick, powder.ID: powder}}
}

func (f *fakeCatalog) ListProducts(_ context.Context, _ catalog.Filter) catalog.Listing {
	out := []catalog.Product{lipstick, powder}
	return catalog.Listing{Products: out, Degraded: f.degraded}
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int) (catalog.Product, bool) {
	if p, ok := f.products[id]; ok && !f.degraded {
		return p, false
	}
	return lipstick, true
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	e        *echo.Echo
	db       *gorm.DB
	sessions session.Store
	engine   *cart.Engine
	catalog  *fakeCatalog
	events   *recordingPublisher
	registry *prometheus.Registry
	metrics  *metrics.Collector
	issuer   *tokens.Issuer
	accounts *account.Service

	products *ProductHTTP
	cart     *CartHTTP
	checkout *CheckoutHTTP
	auth     *AuthHTTP
}

func newFixture(t *testing.T, policy cart.HandoffPolicy) *fixture {
	return newFixtureWithSessions(t, policy, session.NewMemoryStore(time.Hour))
}

func newFixtureWithSessions(t *testing.T, policy cart.HandoffPolicy, sessions session.Store) *fixture {
	t.Helper()

	gdb := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	f := &fixture{
		e:        echo.New(),
		db:       gdb,
		sessions: sessions,
		engine:   cart.NewEngine(gdb, sessions, policy),
		catalog:  newFakeCatalog(),
		events:   &recordingPublisher{},
		registry: reg,
		metrics:  metrics.NewCollector(reg),
		issuer:   tokens.NewIssuer([]byte("test-jwt-secret"), []byte("test-refresh-secret")),
	}
	f.e.Validator = validate.EchoValidator{}
	f.accounts = account.NewService(gdb, f.issuer)

	f.products = &ProductHTTP{Catalog: f.catalog}
	f.cart = &CartHTTP{Engine: f.engine, Catalog: f.catalog, Events: f.events, Metrics: f.metrics}
	f.checkout = &CheckoutHTTP{Engine: f.engine, Flow: checkout.NewFlow(f.catalog), Events: f.events, Metrics: f.metrics}
	f.auth = &AuthHTTP{Accounts: f.accounts, Engine: f.engine, Events: f.events, Metrics: f.metrics}
	return f
}

func (f *fixture) deps() *Deps {
	return &Deps{
		DB:              f.db,
		Sessions:        f.sessions,
		Gatherer:        f.registry,
		Metrics:         f.metrics,
		Resolver:        identity.NewResolver(f.issuer, f.accounts, false),
		ProductHandler:  f.products,
		CartHandler:     f.cart,
		CheckoutHandler: f.checkout,
		AuthHandler:     f.auth,
	}
}

type call struct {
	method  string
	target  string
	body    string
	id      identity.Identity
	param   string
	cookies []*http.Cookie
}

// do runs h on a context built the way the router would, with the identity already resolved.
func (f *fixture) do(t *testing.T, h echo.HandlerFunc, cl call) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if cl.body != "" {
		body = strings.NewReader(cl.body)
	}
	req := httptest.NewRequest(cl.method, cl.target, body)
	if cl.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cl.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if cl.param != "" {
		c.SetParamNames("id")
		c.SetParamValues(cl.param)
	}
	identity.Set(c, cl.id)

	require.NoError(t, h(c))
	return rec
}

func guest(token string) identity.Identity {
	return identity.Identity{GuestToken: token}
}

func lastCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	var out *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			out = ck
		}
	}
	return out
}

// flashFrom carries the notice cookie of rec over to the next request.
func flashFrom(rec *httptest.ResponseRecorder) []*http.Cookie {
	if ck := lastCookie(rec, flash.CookieName); ck != nil && ck.Value != "" {
		return []*http.Cookie{{Name: ck.Name, Value: ck.Value}}
	}
	return nil
}
