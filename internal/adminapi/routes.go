// Package adminapi serves the admin control plane over HTTP: the REST
// routes, the admin WebSocket and the SSE event stream.
package adminapi

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/relaymesh/conduit/internal/admin"
)

// Ctx is the request context handed to route handlers. The HTTP adapter
// owns encoding; handlers only see decoded inputs.
type Ctx struct {
	Admin  *admin.AdminCore
	Auth   admin.AuthResult
	Params map[string]string
	Query  url.Values
	Body   []byte
}

// Result is a handler's response before JSON encoding.
type Result struct {
	Status  int
	Body    any
	Headers map[string]string
}

// HandlerFunc processes one matched request.
type HandlerFunc func(ctx *Ctx) Result

// Route is one declarative route table entry. Paths use :name segment
// parameters.
type Route struct {
	Method       string
	Path         string
	RequiresAuth bool
	Handler      HandlerFunc
}

type compiledRoute struct {
	Route
	re     *regexp.Regexp
	params []string
}

var segmentParam = regexp.MustCompile(`:([A-Za-z0-9_]+)`)

// compile turns the :name path grammar into an anchored regexp plus the
// ordered parameter names. Done once at router build time.
func compile(route Route) compiledRoute {
	params := []string{}
	pattern := segmentParam.ReplaceAllStringFunc(regexp.QuoteMeta(route.Path), func(m string) string {
		params = append(params, strings.TrimPrefix(m, ":"))
		return `([^/]+)`
	})
	return compiledRoute{
		Route:  route,
		re:     regexp.MustCompile("^" + pattern + "$"),
		params: params,
	}
}

// match tests path against the route, extracting segment parameters.
func (c *compiledRoute) match(path string) (map[string]string, bool) {
	m := c.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(c.params))
	for i, name := range c.params {
		params[name] = m[i+1]
	}
	return params, true
}

// routeTable enumerates every REST route. First match in registration
// order wins.
func (r *Router) routeTable() []Route {
	return []Route{
		{Method: "GET", Path: "/health", RequiresAuth: false, Handler: r.handleHealth},
		{Method: "GET", Path: "/status", RequiresAuth: true, Handler: r.handleStatus},

		{Method: "GET", Path: "/metrics", RequiresAuth: true, Handler: r.handleMetrics},
		{Method: "GET", Path: "/metrics/history", RequiresAuth: true, Handler: r.handleMetricsHistory},
		{Method: "GET", Path: "/metrics/throughput", RequiresAuth: true, Handler: r.handleMetricsThroughput},
		{Method: "GET", Path: "/metrics/latency", RequiresAuth: true, Handler: r.handleMetricsLatency},
		{Method: "GET", Path: "/metrics/errors", RequiresAuth: true, Handler: r.handleMetricsErrors},
		{Method: "POST", Path: "/metrics/reset", RequiresAuth: true, Handler: r.handleMetricsReset},

		{Method: "GET", Path: "/clients", RequiresAuth: true, Handler: r.handleListClients},
		{Method: "GET", Path: "/clients/:id", RequiresAuth: true, Handler: r.handleGetClient},
		{Method: "DELETE", Path: "/clients", RequiresAuth: true, Handler: r.handleDisconnectAll},
		{Method: "DELETE", Path: "/clients/:id", RequiresAuth: true, Handler: r.handleDisconnectClient},
		{Method: "DELETE", Path: "/clients/:id/queue", RequiresAuth: true, Handler: r.handleClearQueue},

		{Method: "GET", Path: "/bans", RequiresAuth: true, Handler: r.handleListBans},
		{Method: "GET", Path: "/bans/clients", RequiresAuth: true, Handler: r.handleListClientBans},
		{Method: "GET", Path: "/bans/ips", RequiresAuth: true, Handler: r.handleListIPBans},
		{Method: "POST", Path: "/bans/client/:id", RequiresAuth: true, Handler: r.handleBanClient},
		{Method: "DELETE", Path: "/bans/client/:id", RequiresAuth: true, Handler: r.handleUnbanClient},
		{Method: "POST", Path: "/bans/ip/:ip", RequiresAuth: true, Handler: r.handleBanIP},
		{Method: "DELETE", Path: "/bans/ip/:ip", RequiresAuth: true, Handler: r.handleUnbanIP},
		{Method: "DELETE", Path: "/bans", RequiresAuth: true, Handler: r.handleClearBans},

		{Method: "GET", Path: "/audit", RequiresAuth: true, Handler: r.handleGetAudit},
		{Method: "DELETE", Path: "/audit", RequiresAuth: true, Handler: r.handleClearAudit},

		{Method: "GET", Path: "/config", RequiresAuth: true, Handler: r.handleGetConfig},
		{Method: "PATCH", Path: "/config/rate-limit", RequiresAuth: true, Handler: r.handlePatchRateLimit},
		{Method: "PATCH", Path: "/config/features", RequiresAuth: true, Handler: r.handlePatchFeatures},

		{Method: "POST", Path: "/broadcast", RequiresAuth: true, Handler: r.handleBroadcast},
	}
}
