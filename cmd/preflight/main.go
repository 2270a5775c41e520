// cmd/preflight/main.go
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hamed0406/certwatch/internal/config"
	"github.com/hamed0406/certwatch/internal/targets"
)

func main() {
	_ = godotenv.Load()

	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	// Numbers: config falls back silently, so flag bad values here.
	for _, name := range []string{"CHECK_INTERVAL", "MAX_WORKERS", "PROBE_TIMEOUT_MS", "ALERT_DAYS", "TEST_COOLDOWN_SEC"} {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			fail(name + "=" + v + " is not a non-negative integer; the default will be used.")
		}
	}

	cfg := config.FromEnv()

	list, _, err := targets.NewFile(cfg.SitesFile).Poll()
	if err != nil {
		warn(fmt.Sprintf("SITES_FILE %s: %v (service starts with no targets).", cfg.SitesFile, err))
	} else {
		ok(fmt.Sprintf("SITES_FILE=%s (%d sites)", cfg.SitesFile, len(list)))
	}

	for name, v := range map[string]string{"TEAMS_WEBHOOK": cfg.TeamsWebhook, "SLACK_WEBHOOK": cfg.SlackWebhook} {
		if v == "" {
			continue
		}
		if u, err := url.Parse(v); err != nil || u.Scheme != "https" || u.Host == "" {
			fail(name + " is not an https URL.")
		} else {
			ok(name + " present (" + u.Host + ")")
		}
	}
	if !cfg.WebhookConfigured() {
		warn("no TEAMS_WEBHOOK or SLACK_WEBHOOK set; alerts will only be logged.")
	}

	switch cfg.HistoryStore {
	case "file", "sqlite":
		ok("HISTORY_STORE=" + cfg.HistoryStore + " at " + cfg.HistoryPath())
	case "postgres":
		if cfg.DatabaseURL == "" {
			fail("HISTORY_STORE=postgres but DATABASE_URL is empty.")
		} else {
			ok("HISTORY_STORE=postgres, DATABASE_URL present")
		}
	case "memory":
		warn("HISTORY_STORE=memory; duplicate alerts after every restart.")
	default:
		fail("HISTORY_STORE=" + cfg.HistoryStore + " is not one of file, sqlite, postgres, memory.")
	}

	if cfg.TestKey == "" {
		warn("TEST_KEY empty; /test-webhook and /test-alert are open to anyone.")
	} else {
		ok("TEST_KEY set")
	}
	ok("API_ADDR=" + cfg.Addr)

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
