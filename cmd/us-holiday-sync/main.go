// One-shot tool: fold US equity holidays into a market hours entry.
//
// Holidays come from the exchange rules (-source rules), the Alpaca trading
// calendar (-source alpaca) or both, in which case dates the two sources
// disagree on are reported.
//
// Usage:
//
//	go run ./cmd/us-holiday-sync -from 2024 -to 2026 -out config/market-hours.json
//	go run ./cmd/us-holiday-sync -source both -save
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"marketclock/internal/config"
	"marketclock/internal/gather/us"
	"marketclock/internal/holidays"
	"marketclock/internal/marketdb"
	"marketclock/internal/store"
	"marketclock/internal/util"
)

func main() {
	year := time.Now().Year()
	source := flag.String("source", "rules", "holiday source: rules, alpaca or both")
	from := flag.Int("from", year-1, "first year to sync")
	to := flag.Int("to", year+2, "last year to sync")
	key := flag.String("key", "", "market hours entry to update (default calendar.sync_key)")
	out := flag.String("out", "", "write the updated market hours database to this JSON file")
	save := flag.Bool("save", false, "persist the updated entry to the SQLite store")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *key == "" {
		*key = cfg.Calendar.SyncKey
	}
	if *to < *from {
		log.Fatalf("-to %d is before -from %d", *to, *from)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var dates []time.Time
	switch *source {
	case "rules":
		dates = holidays.USEquity(*from, *to)
	case "alpaca":
		dates, err = fromAlpaca(ctx, cfg, *from, *to)
		if err != nil {
			log.Fatalf("fetching Alpaca calendar: %v", err)
		}
	case "both":
		rules := holidays.USEquity(*from, *to)
		broker, err := fromAlpaca(ctx, cfg, *from, *to)
		if err != nil {
			log.Fatalf("fetching Alpaca calendar: %v", err)
		}
		reportDiff(rules, broker)
		dates = union(rules, broker)
	default:
		log.Fatalf("unknown -source %q", *source)
	}

	db, err := marketdb.Load(cfg.Storage.MarketHoursPath)
	if err != nil {
		log.Fatalf("loading market hours: %v", err)
	}
	updated, err := db.WithHolidays(*key, dates)
	if err != nil {
		log.Fatalf("updating %s: %v", *key, err)
	}

	if *out != "" {
		data, err := updated.Marshal()
		if err != nil {
			log.Fatalf("encoding market hours: %v", err)
		}
		if err := os.WriteFile(*out, append(data, '\n'), 0o644); err != nil {
			log.Fatalf("writing %s: %v", *out, err)
		}
	}

	if *save {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			log.Fatalf("creating sqlite dir: %v", err)
		}
		st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		defer st.Close()
		if err := st.SaveEntry(ctx, *key, updated.Entries()[*key]); err != nil {
			log.Fatalf("saving %s: %v", *key, err)
		}
	}

	logger.Info("holidays synced",
		"key", *key,
		"source", *source,
		"from", *from,
		"to", *to,
		"holidays", len(dates),
		"out", *out,
		"saved", *save,
	)
	for _, d := range dates {
		fmt.Println(d.Format(util.DateLayout))
	}
}

func fromAlpaca(ctx context.Context, cfg *config.Config, from, to int) ([]time.Time, error) {
	if !cfg.Alpaca.Configured() {
		return nil, fmt.Errorf("Alpaca credentials are not configured")
	}
	client := us.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(max(cfg.Calendar.SyncRatePerMin, 1))), 1)
	return us.HolidaysFromCalendar(ctx, client, limiter,
		time.Date(from, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(to, time.December, 31, 0, 0, 0, 0, time.UTC),
	)
}

// reportDiff logs dates only one source closes on. The broker calendar also
// carries one-off closures that no rule predicts.
func reportDiff(rules, broker []time.Time) {
	if len(broker) == 0 {
		return
	}
	first, last := broker[0], broker[len(broker)-1]
	for _, d := range rules {
		if d.Before(first) || d.After(last) {
			continue
		}
		if !slices.ContainsFunc(broker, d.Equal) {
			log.Printf("rules close on %s, Alpaca does not", d.Format(util.DateLayout))
		}
	}
	for _, d := range broker {
		if !slices.ContainsFunc(rules, d.Equal) {
			log.Printf("Alpaca closes on %s, rules do not", d.Format(util.DateLayout))
		}
	}
}

func union(a, b []time.Time) []time.Time {
	out := slices.Clone(a)
	for _, d := range b {
		if !slices.ContainsFunc(out, d.Equal) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(x, y time.Time) int { return x.Compare(y) })
	return out
}
