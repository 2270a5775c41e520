package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/certwatch/internal/domain"
	"github.com/hamed0406/certwatch/internal/notify"
)

type siteView struct {
	Site      domain.Target      `json:"site"`
	Expiry    string             `json:"expiry"`
	Days      int                `json:"days"`
	Issuer    string             `json:"issuer"`
	Severity  domain.Severity    `json:"severity"`
	Error     *domain.ProbeError `json:"error"`
	CheckedAt time.Time          `json:"checked_at"`
}

func viewOf(e domain.Entry) siteView {
	v := siteView{
		Site:      e.Result.Target,
		Expiry:    "-",
		Days:      e.Days,
		Issuer:    "-",
		Severity:  e.Severity,
		Error:     e.Result.Err,
		CheckedAt: e.Result.CheckedAt,
	}
	if e.Result.Err == nil && e.Result.Expiry != nil {
		v.Expiry = e.Result.Expiry.UTC().Format(domain.DateLayout)
		v.Issuer = e.Result.Issuer
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	entries := s.State.Current().Ordered()
	out := make([]siteView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(e))
	}
	w.Header().Set("Cache-Control", "no-cache, no-store")
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store")
	writeJSON(w, http.StatusOK, s.Alerts.History())
}

type healthView struct {
	Status            string         `json:"status"`
	SitesTotal        int            `json:"sites_total"`
	Counts            map[string]int `json:"counts"`
	WebhookConfigured bool           `json:"webhook_configured"`
	AlertThreshold    int            `json:"alert_threshold"`
	CheckInterval     int            `json:"check_interval"`
	UptimeSeconds     int            `json:"uptime_seconds"`
	Timestamp         time.Time      `json:"timestamp"`
}

// handleHealth always answers 200; status is "starting" until the first
// cycle has been published.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.State.Current()
	counts := make(map[string]int, len(domain.Severities))
	for sev, n := range snap.Counts() {
		counts[sev.String()] = n
	}
	h := healthView{
		Status:            "starting",
		Counts:            counts,
		WebhookConfigured: s.Alerts.Configured(),
		AlertThreshold:    s.Alerts.Threshold(),
		CheckInterval:     int(s.Options.CheckInterval.Seconds()),
		UptimeSeconds:     int(s.now().Sub(s.started).Seconds()),
		Timestamp:         s.now().UTC(),
	}
	if snap != nil {
		h.Status = "ok"
		h.SitesTotal = len(snap.Entries)
	}
	writeJSON(w, http.StatusOK, h)
}

// dispatchStatus maps a sink result to the response code: 400 when nothing
// is configured, 502 when the sink failed.
func dispatchStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, notify.ErrNotConfigured):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) testText() string {
	sites := 0
	if s.Options.Sites != nil {
		sites = s.Options.Sites()
	}
	return fmt.Sprintf("✅ Webhook is working! Test sent at %s. Alert threshold %d days, check interval %ds, %d sites monitored.",
		s.now().UTC().Format("2006-01-02 15:04:05"),
		s.Alerts.Threshold(),
		int(s.Options.CheckInterval.Seconds()),
		sites,
	)
}

func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	d, err := s.Alerts.SendTestNotification(r.Context(), s.testText())
	resp := map[string]any{
		"webhook_configured": s.Alerts.Configured(),
		"success":            err == nil,
		"message":            d.Message,
		"timestamp":          s.now().UTC(),
	}
	if err != nil {
		resp["message"] = err.Error()
		s.Logger.Warn("test_webhook_failed", zap.Error(err))
	} else {
		s.Logger.Info("test_webhook_sent", zap.Int("status", d.StatusCode))
	}
	writeJSON(w, dispatchStatus(err), resp)
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	fake, _, err := s.Alerts.SendTestAlert(r.Context())
	resp := map[string]any{
		"webhook_configured": s.Alerts.Configured(),
		"test_sites":         len(fake),
		"success":            err == nil,
		"message":            "fake alert sent",
		"timestamp":          s.now().UTC(),
	}
	if err != nil {
		resp["message"] = err.Error()
		s.Logger.Warn("test_alert_failed", zap.Error(err))
	} else {
		s.Logger.Info("test_alert_sent", zap.Int("sites", len(fake)))
	}
	writeJSON(w, dispatchStatus(err), resp)
}
