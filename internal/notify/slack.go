package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) SendAlert(ctx context.Context, alerts []Alert) (Delivery, error) {
	if s == nil || s.Webhook == "" {
		return Delivery{}, ErrNotConfigured
	}
	return postJSON(ctx, s.Client, s.Name(), s.Webhook, slackPayload{Text: slackAlertText(alerts, time.Now())})
}

func (s *Slack) SendTest(ctx context.Context, text string) (Delivery, error) {
	if s == nil || s.Webhook == "" {
		return Delivery{}, ErrNotConfigured
	}
	return postJSON(ctx, s.Client, s.Name(), s.Webhook, slackPayload{Text: "*SSL Certificate Monitor: Test*\n" + text})
}

func slackAlertText(alerts []Alert, now time.Time) string {
	sorted := sortedByDays(alerts)
	var b strings.Builder
	fmt.Fprintf(&b, "*SSL Certificate Alert*: %d certificate%s need attention\n", len(sorted), plural(len(sorted)))
	for _, a := range sorted {
		verb := "expires"
		if a.Days < 0 {
			verb = "expired"
		}
		fmt.Fprintf(&b, "• *%s* %s %s (%s, %s)\n",
			a.Target, verb, humanize.RelTime(a.Expiry, now, "ago", "from now"),
			a.Expiry.Format(time.RFC1123), a.Severity)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedByDays(alerts []Alert) []Alert {
	out := make([]Alert, len(alerts))
	copy(out, alerts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Days < out[j].Days })
	return out
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
