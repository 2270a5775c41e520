package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Teams posts adaptive cards to a Teams Workflows webhook.
type Teams struct {
	Webhook   string
	Client    *http.Client
	AlertDays int // shown in the card subtitle
}

func NewTeams(webhook string, alertDays int) *Teams {
	if webhook == "" {
		return nil
	}
	return &Teams{
		Webhook:   webhook,
		Client:    &http.Client{Timeout: 10 * time.Second},
		AlertDays: alertDays,
	}
}

func (t *Teams) Name() string { return "teams" }

func (t *Teams) SendAlert(ctx context.Context, alerts []Alert) (Delivery, error) {
	if t == nil || t.Webhook == "" {
		return Delivery{}, ErrNotConfigured
	}
	return postJSON(ctx, t.Client, t.Name(), t.Webhook, alertCard(alerts, t.AlertDays))
}

func (t *Teams) SendTest(ctx context.Context, text string) (Delivery, error) {
	if t == nil || t.Webhook == "" {
		return Delivery{}, ErrNotConfigured
	}
	return postJSON(ctx, t.Client, t.Name(), t.Webhook, card(
		textBlock("🔒 SSL Certificate Monitor: Test", "Bolder", "Large", ""),
		textBlock(text, "", "", "Good"),
	))
}

type object = map[string]any

func card(body ...object) object {
	return object{
		"type": "message",
		"attachments": []object{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content": object{
				"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
				"type":    "AdaptiveCard",
				"version": "1.5",
				"body":    body,
			},
		}},
	}
}

func textBlock(text, weight, size, color string) object {
	b := object{"type": "TextBlock", "text": text, "wrap": true}
	if weight != "" {
		b["weight"] = weight
	}
	if size != "" {
		b["size"] = size
	}
	if color != "" {
		b["color"] = color
	}
	return b
}

func cell(text string, bold bool) object {
	tb := object{"type": "TextBlock", "text": text, "size": "Small", "wrap": true}
	if bold {
		tb["weight"] = "Bolder"
	}
	return object{"type": "TableCell", "items": []object{tb}}
}

// alertStatus renders the per-row status column.
func alertStatus(days int) string {
	switch {
	case days < 0:
		return fmt.Sprintf("🔴 Expired %dd ago", -days)
	case days <= 7:
		return fmt.Sprintf("🔴 %dd left", days)
	default:
		return fmt.Sprintf("🟡 %dd left", days)
	}
}

func alertCard(alerts []Alert, alertDays int) object {
	sorted := sortedByDays(alerts)

	color := "warning"
	if len(sorted) > 0 && sorted[0].Days <= 7 {
		color = "attention"
	}

	rows := []object{{
		"type":  "TableRow",
		"style": "accent",
		"cells": []object{cell("Site", true), cell("Status", true), cell("Expires", true)},
	}}
	for _, a := range sorted {
		rows = append(rows, object{
			"type": "TableRow",
			"cells": []object{
				cell(string(a.Target), true),
				cell(alertStatus(a.Days), false),
				cell(a.Expiry.Format("2006-01-02"), false),
			},
		})
	}

	subtitle := textBlock(fmt.Sprintf("%d certificate%s expiring within %d days", len(sorted), plural(len(sorted)), alertDays), "", "", color)
	subtitle["spacing"] = "None"

	return card(
		textBlock("🔒 SSL Certificate Alert", "Bolder", "Large", ""),
		subtitle,
		object{
			"type":             "Table",
			"gridStyle":        "accent",
			"firstRowAsHeader": true,
			"showGridLines":    true,
			"columns":          []object{{"width": 3}, {"width": 2}, {"width": 2}},
			"rows":             rows,
		},
	)
}
