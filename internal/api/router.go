package api

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rcourtman/pulse-snmp-profiles/internal/inventory"
	"github.com/rcourtman/pulse-snmp-profiles/internal/logging"
	"github.com/rcourtman/pulse-snmp-profiles/internal/profiles"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmp"
	"github.com/rcourtman/pulse-snmp-profiles/internal/snmpconfig"
	"github.com/rcourtman/pulse-snmp-profiles/internal/utils"
)

const (
	routeProfiles  = "/api/snmp/profiles"
	routeFit       = "/api/snmp/fit"
	routeFitStream = "/api/snmp/fit/stream"
	routeNodes     = "/api/inventory/nodes"
	routeHealth    = "/healthz"
)

// Resolver finds a working SNMP profile for an agent.
type Resolver interface {
	ResolveByLabel(ctx context.Context, label string, addr netip.Addr, location, oid string) profiles.Result
}

// AsyncResolver starts a resolution in the background. The channel yields one
// Result and is then closed.
type AsyncResolver interface {
	ResolveByLabelAsync(ctx context.Context, label string, addr netip.Addr, location, oid string) <-chan profiles.Result
}

// ProfileLister lists catalog profiles in priority order.
type ProfileLister interface {
	Profiles() []snmpconfig.Profile
}

// NodeLister lists inventory nodes.
type NodeLister interface {
	ListNodes(ctx context.Context) ([]inventory.Node, error)
}

// ProfileSummary is the public view of a catalog profile.
type ProfileSummary struct {
	Priority int    `json:"priority"`
	Label    string `json:"label"`
	Filter   string `json:"filter,omitempty"`
	Version  string `json:"version,omitempty"`
}

// FitResponse carries the resolved agent config with secrets masked.
type FitResponse struct {
	Profile string           `json:"profile"`
	Config  snmp.AgentConfig `json:"config"`
}

// Router serves the SNMP profile HTTP API.
type Router struct {
	mux      *http.ServeMux
	resolver Resolver
	async    AsyncResolver
	catalog  ProfileLister
	nodes    NodeLister
	metrics  *httpMetrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRegisterer registers the API's request metrics with reg.
func WithRegisterer(reg prometheus.Registerer) RouterOption {
	return func(r *Router) {
		r.metrics = newHTTPMetrics(reg)
	}
}

// NewRouter wires the API routes. nodes may be nil, in which case the
// inventory route is not served. The fit stream is served when resolver
// also implements AsyncResolver.
func NewRouter(resolver Resolver, catalog ProfileLister, nodes NodeLister, opts ...RouterOption) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		resolver: resolver,
		catalog:  catalog,
		nodes:    nodes,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.mux.HandleFunc(routeProfiles, r.handleProfiles)
	r.mux.HandleFunc(routeFit, r.handleFit)
	r.mux.HandleFunc(routeHealth, r.handleHealth)
	if async, ok := resolver.(AsyncResolver); ok {
		r.async = async
		r.mux.HandleFunc(routeFitStream, r.handleFitStream)
	}
	if nodes != nil {
		r.mux.HandleFunc(routeNodes, r.handleNodes)
	}
	return r
}

// Handler returns the router behind the request-ID, metrics and recovery
// middleware.
func (r *Router) Handler() http.Handler {
	return chain(r, withRequestID, r.metrics.instrument, recoverPanics)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	_ = utils.WriteJSONResponse(w, map[string]string{"status": "ok"})
}

func (r *Router) handleProfiles(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}

	list := r.catalog.Profiles()
	out := make([]ProfileSummary, 0, len(list))
	for i, p := range list {
		out = append(out, ProfileSummary{
			Priority: i,
			Label:    p.Label,
			Filter:   p.FilterExpression,
			Version:  p.Version,
		})
	}
	if err := utils.WriteJSONResponse(w, out); err != nil {
		logger := logging.FromContext(req.Context())
		logger.Error().Err(err).Msg("Failed to write profiles response")
	}
}

func (r *Router) handleFit(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}

	query := req.URL.Query()
	addr, err := utils.ParseHostAddress(query.Get("ip"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_ip", "A valid ip query parameter is required", map[string]string{"ip": query.Get("ip")})
		return
	}
	oid := strings.TrimSpace(query.Get("oid"))
	if oid != "" {
		if _, err := snmp.ParseObjID(oid); err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "invalid_oid", "The oid query parameter must be a numeric object identifier", map[string]string{"oid": oid})
			return
		}
	}
	location := strings.TrimSpace(query.Get("location"))
	label := query.Get("profile")

	logger := logging.FromContext(req.Context())
	logger.Debug().
		Str("ip", addr.String()).
		Str("location", location).
		Str("profile", label).
		Msg("Fitting SNMP profile")

	result := r.resolver.ResolveByLabel(req.Context(), label, addr, location, oid)
	if !result.Found {
		writeErrorResponse(w, http.StatusNotFound, "no_profile_fit", "No SNMP profile answered for this address", map[string]string{"ip": addr.String()})
		return
	}

	resp := FitResponse{
		Profile: result.Config.ProfileLabel,
		Config:  result.Config.Redacted(),
	}
	if err := utils.WriteJSONResponse(w, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write fit response")
	}
}

func (r *Router) handleNodes(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}

	logger := logging.FromContext(req.Context())
	nodes, err := r.nodes.ListNodes(req.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list inventory nodes")
		writeErrorResponse(w, http.StatusInternalServerError, "inventory_error", "Failed to list inventory nodes", nil)
		return
	}
	if nodes == nil {
		nodes = []inventory.Node{}
	}
	if err := utils.WriteJSONResponse(w, nodes); err != nil {
		logger.Error().Err(err).Msg("Failed to write nodes response")
	}
}

func requireGet(w http.ResponseWriter, req *http.Request) bool {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	return false
}
