package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"marketclock/pkg/marketclock"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: marketclock-cli [flags] <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                          Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  open       <key> [time]          Is the market open at time (default now)\n")
	fmt.Fprintf(os.Stderr, "  between    <key> <start> <end>   Is the market open at any point of [start, end)\n")
	fmt.Fprintf(os.Stderr, "  date-open  <key> [time]          Does the market trade on the date of time\n")
	fmt.Fprintf(os.Stderr, "  next-open  <key> [time]          First open strictly after time\n")
	fmt.Fprintf(os.Stderr, "  next-close <key> [time]          First close strictly after time\n")
	fmt.Fprintf(os.Stderr, "  start-time <key> <bar> <count> [end]\n")
	fmt.Fprintf(os.Stderr, "                                   Start of count open bars of size bar ending at end\n")
	fmt.Fprintf(os.Stderr, "\nA key is a market hours key such as Equity-usa-[*] or Equity-usa-SPY.\n")
	fmt.Fprintf(os.Stderr, "Times are RFC 3339.\n\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	addr := flag.String("addr", envOr("MARKETCLOCK_ADDR", "localhost:9090"), "marketclock-server gRPC address")
	extended := flag.Bool("extended", false, "include pre- and post-market segments")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	if args[0] == "version" {
		fmt.Printf("marketclock-cli %s\n", version)
		return
	}
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	client, err := marketclock.Dial(*addr)
	if err != nil {
		fatalf("%v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	target := marketclock.Key(args[1])
	rest := args[2:]

	switch args[0] {
	case "open":
		at := timeArg(rest, 0)
		open, err := client.IsOpen(ctx, target, at, *extended)
		check(err)
		fmt.Printf("%s open at %s: %t\n", args[1], at.Format(time.RFC3339), open)

	case "between":
		if len(rest) < 2 {
			fatalf("between needs <start> <end>")
		}
		start, end := timeArg(rest, 0), timeArg(rest, 1)
		open, err := client.IsOpenBetween(ctx, target, start, end, *extended)
		check(err)
		fmt.Printf("%s open between %s and %s: %t\n", args[1], start.Format(time.RFC3339), end.Format(time.RFC3339), open)

	case "date-open":
		at := timeArg(rest, 0)
		open, err := client.IsDateOpen(ctx, target, at)
		check(err)
		fmt.Printf("%s trades on %s: %t\n", args[1], at.Format("2006-01-02"), open)

	case "next-open":
		t, err := client.NextMarketOpen(ctx, target, timeArg(rest, 0), *extended)
		check(err)
		fmt.Println(t.Format(time.RFC3339))

	case "next-close":
		t, err := client.NextMarketClose(ctx, target, timeArg(rest, 0), *extended)
		check(err)
		fmt.Println(t.Format(time.RFC3339))

	case "start-time":
		if len(rest) < 2 {
			fatalf("start-time needs <bar> <count>")
		}
		bar, err := time.ParseDuration(rest[0])
		if err != nil {
			fatalf("bar: %v", err)
		}
		count, err := strconv.Atoi(rest[1])
		if err != nil {
			fatalf("count: %v", err)
		}
		t, err := client.StartTimeForTradeBars(ctx, target, timeArg(rest, 2), bar, count, *extended)
		check(err)
		fmt.Println(t.Format(time.RFC3339))

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		usage()
		os.Exit(1)
	}
}

// timeArg parses args[i] as RFC 3339, defaulting to now when absent.
func timeArg(args []string, i int) time.Time {
	if i >= len(args) {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339Nano, args[i])
	if err != nil {
		fatalf("time %q: %v", args[i], err)
	}
	return t
}

func check(err error) {
	switch {
	case err == nil:
	case marketclock.IsNotFound(err):
		fatalf("not found: %v", err)
	case marketclock.IsInvalidArgument(err):
		fatalf("invalid request: %v", err)
	default:
		fatalf("%v", err)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "marketclock-cli: "+format+"\n", args...)
	os.Exit(1)
}
