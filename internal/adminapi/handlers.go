package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/relaymesh/conduit/internal/admin"
	"github.com/relaymesh/conduit/internal/protocol"
)

func ok(body any) Result {
	return Result{Status: http.StatusOK, Body: body}
}

func fail(status int, msg string) Result {
	return Result{Status: status, Body: map[string]string{"error": msg}}
}

func actionErr(err error) Result {
	if errors.Is(err, admin.ErrNotAttached) {
		return fail(http.StatusServiceUnavailable, "server not attached")
	}
	return fail(http.StatusBadRequest, err.Error())
}

func (r *Router) handleHealth(*Ctx) Result {
	return ok(map[string]string{"status": "ok"})
}

func (r *Router) handleStatus(ctx *Ctx) Result {
	body := map[string]any{
		"name":    "conduit",
		"version": r.version,
		"uptime":  time.Since(r.started).Milliseconds(),
	}
	if srv := ctx.Admin.Server(); srv != nil {
		summaries := srv.PeerSummaries()
		connected := 0
		for _, s := range summaries {
			if s.Connected {
				connected++
			}
		}
		opts := srv.Options()
		body["clients"] = map[string]any{
			"registered": len(summaries),
			"connected":  connected,
		}
		body["queuedMessages"] = srv.TotalQueued()
		body["features"] = map[string]any{
			"relay":     opts.RelayEnabled,
			"rateLimit": opts.RateLimitEnabled,
			"discovery": r.cfg.AllowDiscovery,
		}
	}
	return ok(body)
}

func (r *Router) handleMetrics(ctx *Ctx) Result {
	return ok(ctx.Admin.Collector.Current())
}

// handleMetricsHistory accepts either duration=<N>{m,h,d} or explicit
// start and end bounds in ms since epoch.
func (r *Router) handleMetricsHistory(ctx *Ctx) Result {
	var start, end int64
	if d := ctx.Query.Get("duration"); d != "" {
		span, err := parseSpan(d)
		if err != nil {
			return fail(http.StatusBadRequest, err.Error())
		}
		start = time.Now().Add(-span).UnixMilli()
	} else {
		var err error
		if start, err = parseMillis(ctx.Query.Get("start")); err != nil {
			return fail(http.StatusBadRequest, "invalid start")
		}
		if end, err = parseMillis(ctx.Query.Get("end")); err != nil {
			return fail(http.StatusBadRequest, "invalid end")
		}
	}
	return ok(map[string]any{"snapshots": ctx.Admin.Collector.History(start, end)})
}

func (r *Router) handleMetricsThroughput(ctx *Ctx) Result {
	return ok(map[string]any{"series": ctx.Admin.Registry.Throughput.GetAll()})
}

func (r *Router) handleMetricsLatency(ctx *Ctx) Result {
	return ok(map[string]any{"series": ctx.Admin.Registry.Latency.GetAll()})
}

func (r *Router) handleMetricsErrors(ctx *Ctx) Result {
	return ok(map[string]any{
		"total":  ctx.Admin.Registry.Errors.Total(),
		"byType": ctx.Admin.Registry.Errors.ByKind(),
	})
}

func (r *Router) handleMetricsReset(ctx *Ctx) Result {
	ctx.Admin.ResetMetrics(ctx.Auth.UserID)
	return ok(map[string]any{"success": true})
}

func (r *Router) handleListClients(ctx *Ctx) Result {
	srv := ctx.Admin.Server()
	if srv == nil {
		return actionErr(admin.ErrNotAttached)
	}
	return ok(map[string]any{"clients": srv.PeerSummaries()})
}

func (r *Router) handleGetClient(ctx *Ctx) Result {
	srv := ctx.Admin.Server()
	if srv == nil {
		return actionErr(admin.ErrNotAttached)
	}
	summary, found := srv.PeerSummary(ctx.Params["id"])
	if !found {
		return fail(http.StatusNotFound, "client not found")
	}
	return ok(summary)
}

func (r *Router) handleDisconnectAll(ctx *Ctx) Result {
	removed, err := ctx.Admin.DisconnectAll(ctx.Auth.UserID, "disconnected by admin")
	if err != nil {
		return actionErr(err)
	}
	return ok(map[string]any{"success": true, "disconnected": removed})
}

func (r *Router) handleDisconnectClient(ctx *Ctx) Result {
	removed, err := ctx.Admin.DisconnectClient(ctx.Auth.UserID, ctx.Params["id"], "disconnected by admin")
	if err != nil {
		return actionErr(err)
	}
	if !removed {
		return fail(http.StatusNotFound, "client not found")
	}
	return ok(map[string]any{"success": true})
}

func (r *Router) handleClearQueue(ctx *Ctx) Result {
	dropped, err := ctx.Admin.ClearQueue(ctx.Auth.UserID, ctx.Params["id"])
	if err != nil {
		return actionErr(err)
	}
	return ok(map[string]any{"success": true, "dropped": dropped})
}

func (r *Router) handleListBans(ctx *Ctx) Result {
	return ok(map[string]any{"bans": ctx.Admin.Bans.List()})
}

func (r *Router) handleListClientBans(ctx *Ctx) Result {
	return ok(map[string]any{"bans": ctx.Admin.Bans.ListClients()})
}

func (r *Router) handleListIPBans(ctx *Ctx) Result {
	return ok(map[string]any{"bans": ctx.Admin.Bans.ListIPs()})
}

type banRequest struct {
	Reason string `json:"reason"`
}

func (r *Router) handleBanClient(ctx *Ctx) Result {
	var req banRequest
	if len(ctx.Body) > 0 {
		if err := json.Unmarshal(ctx.Body, &req); err != nil {
			return fail(http.StatusBadRequest, "invalid JSON body")
		}
	}
	entry, err := ctx.Admin.BanClient(ctx.Auth.UserID, ctx.Params["id"], req.Reason)
	if err != nil {
		return actionErr(err)
	}
	return ok(map[string]any{"success": true, "ban": entry})
}

func (r *Router) handleUnbanClient(ctx *Ctx) Result {
	if !ctx.Admin.UnbanClient(ctx.Auth.UserID, ctx.Params["id"]) {
		return fail(http.StatusNotFound, "ban not found")
	}
	return ok(map[string]any{"success": true})
}

func (r *Router) handleBanIP(ctx *Ctx) Result {
	var req banRequest
	if len(ctx.Body) > 0 {
		if err := json.Unmarshal(ctx.Body, &req); err != nil {
			return fail(http.StatusBadRequest, "invalid JSON body")
		}
	}
	entry, disconnected, err := ctx.Admin.BanIP(ctx.Auth.UserID, ctx.Params["ip"], req.Reason)
	if err != nil {
		return actionErr(err)
	}
	return ok(map[string]any{"success": true, "ban": entry, "disconnected": disconnected})
}

func (r *Router) handleUnbanIP(ctx *Ctx) Result {
	if !ctx.Admin.UnbanIP(ctx.Auth.UserID, ctx.Params["ip"]) {
		return fail(http.StatusNotFound, "ban not found")
	}
	return ok(map[string]any{"success": true})
}

func (r *Router) handleClearBans(ctx *Ctx) Result {
	removed := ctx.Admin.ClearBans(ctx.Auth.UserID)
	return ok(map[string]any{"success": true, "removed": removed})
}

func (r *Router) handleGetAudit(ctx *Ctx) Result {
	q := admin.AuditQuery{
		UserID: ctx.Query.Get("user"),
		Action: ctx.Query.Get("action"),
	}
	if ms, err := parseMillis(ctx.Query.Get("start")); err != nil {
		return fail(http.StatusBadRequest, "invalid start")
	} else if ms > 0 {
		q.Since = time.UnixMilli(ms)
	}
	if ms, err := parseMillis(ctx.Query.Get("end")); err != nil {
		return fail(http.StatusBadRequest, "invalid end")
	} else if ms > 0 {
		q.Until = time.UnixMilli(ms)
	}
	if limit := ctx.Query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return fail(http.StatusBadRequest, "invalid limit")
		}
		q.Limit = n
	}
	return ok(map[string]any{"entries": ctx.Admin.Audit.Query(q)})
}

func (r *Router) handleClearAudit(ctx *Ctx) Result {
	ctx.Admin.ClearAudit(ctx.Auth.UserID)
	return ok(map[string]any{"success": true})
}

func (r *Router) handleGetConfig(*Ctx) Result {
	return ok(r.cfg.Sanitized())
}

type rateLimitPatch struct {
	Enabled    *bool    `json:"enabled"`
	MaxTokens  *int     `json:"maxTokens"`
	RefillRate *float64 `json:"refillRate"`
}

func (r *Router) handlePatchRateLimit(ctx *Ctx) Result {
	var req rateLimitPatch
	if err := json.Unmarshal(ctx.Body, &req); err != nil {
		return fail(http.StatusBadRequest, "invalid JSON body")
	}
	srv := ctx.Admin.Server()
	if srv == nil {
		return actionErr(admin.ErrNotAttached)
	}

	if req.MaxTokens != nil || req.RefillRate != nil {
		limiter := srv.Limiter()
		if limiter == nil {
			return fail(http.StatusBadRequest, "rate limiter not configured")
		}
		maxTokens, refillRate := limiter.Limits()
		if req.MaxTokens != nil {
			maxTokens = *req.MaxTokens
		}
		if req.RefillRate != nil {
			refillRate = *req.RefillRate
		}
		if err := ctx.Admin.UpdateRateLimits(ctx.Auth.UserID, maxTokens, refillRate); err != nil {
			return actionErr(err)
		}
	}
	if req.Enabled != nil {
		if err := ctx.Admin.ToggleFeature(ctx.Auth.UserID, admin.FeatureRateLimit, *req.Enabled); err != nil {
			return actionErr(err)
		}
	}
	return ok(map[string]any{"success": true})
}

type featurePatch struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

func (r *Router) handlePatchFeatures(ctx *Ctx) Result {
	var req featurePatch
	if err := json.Unmarshal(ctx.Body, &req); err != nil {
		return fail(http.StatusBadRequest, "invalid JSON body")
	}
	if req.Feature != admin.FeatureDiscovery && req.Feature != admin.FeatureRelay {
		return fail(http.StatusBadRequest, fmt.Sprintf("unknown feature %q", req.Feature))
	}
	if err := ctx.Admin.ToggleFeature(ctx.Auth.UserID, req.Feature, req.Enabled); err != nil {
		return actionErr(err)
	}
	return ok(map[string]any{"success": true})
}

type broadcastRequest struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (r *Router) handleBroadcast(ctx *Ctx) Result {
	var req broadcastRequest
	if err := json.Unmarshal(ctx.Body, &req); err != nil {
		return fail(http.StatusBadRequest, "invalid JSON body")
	}
	if req.Type == "" {
		return fail(http.StatusBadRequest, "type is required")
	}
	sent, err := ctx.Admin.Broadcast(ctx.Auth.UserID, protocol.Message{Type: req.Type, Payload: req.Payload})
	if err != nil {
		return actionErr(err)
	}
	return ok(map[string]any{"success": true, "recipientCount": sent})
}

// parseSpan reads the compact <N>{m,h,d} duration grammar.
func parseSpan(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.Atoi(strings.TrimRight(s, "mhd"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid duration unit in %q", s)
}

func parseMillis(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
