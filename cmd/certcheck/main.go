package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hamed0406/certwatch/internal/domain"
	"github.com/hamed0406/certwatch/internal/probe"
	"github.com/hamed0406/certwatch/internal/scheduler"
	"github.com/hamed0406/certwatch/internal/state"
	"github.com/hamed0406/certwatch/internal/targets"
)

func main() {
	sites := flag.String("sites", "sites.csv", "target list used when no hostnames are given")
	timeout := flag.Duration("timeout", 10*time.Second, "per-target probe timeout")
	workers := flag.Int("workers", 10, "concurrent probes")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: certcheck [flags] [hostname ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	var src targets.Source
	if flag.NArg() > 0 {
		var list targets.Static
		for _, a := range flag.Args() {
			list = append(list, domain.NormalizeTarget(a))
		}
		src = list
	} else {
		src = targets.NewFile(*sites)
	}
	if list, _, err := src.Poll(); err != nil || len(list) == 0 {
		fmt.Fprintln(os.Stderr, "no targets:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sched := scheduler.NewScheduler(nil, src, probe.NewTLSProber(nil, *timeout), state.New(), nil, time.Hour, *workers)
	snap := sched.RunCycle(ctx)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tEXPIRY\tDAYS\tISSUER\tSTATUS")
	bad := false
	for _, e := range snap.Ordered() {
		r := e.Result
		if r.Err != nil {
			bad = true
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%s\n", r.Target, r.Err)
			continue
		}
		if e.Severity == domain.Critical || e.Severity == domain.Expired {
			bad = true
		}
		fmt.Fprintf(tw, "%s\t%s (%s)\t%d\t%s\t%s\n",
			r.Target,
			r.Expiry.UTC().Format(domain.DateLayout),
			humanize.Time(*r.Expiry),
			e.Days,
			r.Issuer,
			e.Severity,
		)
	}
	_ = tw.Flush()

	c := snap.Counts()
	fmt.Printf("\n%s checked: %d healthy, %d soon, %d warning, %d critical, %d expired, %d error\n",
		humanize.Comma(int64(len(snap.Entries))),
		c[domain.Healthy], c[domain.Soon], c[domain.Warning], c[domain.Critical], c[domain.Expired], c[domain.ErrorState],
	)
	if bad {
		os.Exit(1)
	}
}
