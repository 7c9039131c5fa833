// Command journalctl inspects and administers a qjournal queue directory.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vnykmshr/qjournal/internal/metrics"
	"github.com/vnykmshr/qjournal/pkg/journal"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "stats":
		err = runStats(args)
	case "inspect":
		err = runInspect(args)
	case "checkpoint":
		err = runCheckpoint(args)
	case "gc":
		err = runGC(args)
	case "serve-metrics":
		err = runServeMetrics(args)
	case "version":
		fmt.Printf("journalctl version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "journalctl: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("journalctl - qjournal inspection and administration")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  journalctl <command> [flags] <queue-dir> <queue-name>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  stats          Show tail, file count, journal size, and reader count")
	fmt.Println("  inspect        Show the tail and every reader cursor")
	fmt.Println("  checkpoint     Force a checkpoint of every open reader")
	fmt.Println("  gc             Garbage-collect old data files (no rotation)")
	fmt.Println("  serve-metrics  Open the queue and serve /metrics until killed")
	fmt.Println("  version        Show version information")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -json          Emit machine-readable JSON instead of a table")
}

func openReadOnly(fs *flag.FlagSet, args []string) (*journal.Journal, string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if fs.NArg() < 2 {
		return nil, "", fmt.Errorf("usage: journalctl %s [-json] <queue-dir> <queue-name>", fs.Name())
	}
	dir, name := fs.Arg(0), fs.Arg(1)
	j, err := journal.Open(dir, name)
	if err != nil {
		return nil, "", fmt.Errorf("open %s/%s: %w", dir, name, err)
	}
	return j, dir, nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	j, dir, err := openReadOnly(fs, args)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	stats, err := j.Stats()
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(map[string]any{
			"directory":                dir,
			"tail":                     stats.Tail,
			"earliest_head":            stats.EarliestHead,
			"file_count":               stats.FileCount,
			"journal_size_bytes":       stats.JournalSizeBytes,
			"reader_count":             stats.ReaderCount,
			"corrupted_files_recovered": stats.CorruptedFilesRecovered,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Journal Statistics")
	fmt.Fprintln(w, "==================")
	fmt.Fprintf(w, "Directory:\t%s\n", dir)
	fmt.Fprintf(w, "Tail:\t%d\n", stats.Tail)
	fmt.Fprintf(w, "Earliest head:\t%d\n", stats.EarliestHead)
	fmt.Fprintf(w, "File count:\t%d\n", stats.FileCount)
	fmt.Fprintf(w, "Journal size (bytes):\t%d\n", stats.JournalSizeBytes)
	fmt.Fprintf(w, "Reader count:\t%d\n", stats.ReaderCount)
	fmt.Fprintf(w, "Corrupted files recovered:\t%d\n", stats.CorruptedFilesRecovered)
	return w.Flush()
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	j, dir, err := openReadOnly(fs, args)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	names := j.ReaderNames()
	readers := make([]map[string]any, 0, len(names))
	for _, name := range names {
		r, err := j.Reader(name)
		if err != nil {
			return err
		}
		readers = append(readers, map[string]any{
			"name":     name,
			"head":     r.Head(),
			"done_set": r.DoneSet(),
		})
	}

	if *asJSON {
		return printJSON(map[string]any{
			"directory": dir,
			"tail":      j.Tail(),
			"readers":   readers,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Directory:\t%s\n", dir)
	fmt.Fprintf(w, "Tail:\t%d\n", j.Tail())
	fmt.Fprintln(w, "\nReader\tHead\tDone set")
	for _, r := range readers {
		fmt.Fprintf(w, "%s\t%d\t%v\n", r["name"], r["head"], r["done_set"])
	}
	return w.Flush()
}

func runCheckpoint(args []string) error {
	fs := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	j, dir, err := openReadOnly(fs, args)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	if err := j.Checkpoint(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	fmt.Printf("checkpointed every reader in %s\n", dir)
	return nil
}

func runGC(args []string) error {
	fs := flag.NewFlagSet("gc", flag.ContinueOnError)
	j, dir, err := openReadOnly(fs, args)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	before, err := j.Stats()
	if err != nil {
		return err
	}
	if err := j.CollectGarbage(); err != nil {
		return fmt.Errorf("gc: %w", err)
	}
	after, err := j.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("%s: file count %d -> %d\n", dir, before.FileCount, after.FileCount)
	return nil
}

func runServeMetrics(args []string) error {
	fs := flag.NewFlagSet("serve-metrics", flag.ContinueOnError)
	addr := fs.String("addr", ":9090", "listen address for /metrics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: journalctl serve-metrics [-addr host:port] <queue-dir> <queue-name>")
	}
	dir, name := fs.Arg(0), fs.Arg(1)

	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(reg, name)

	j, err := journal.Open(dir, name, journal.WithMetrics(collector))
	if err != nil {
		return fmt.Errorf("open %s/%s: %w", dir, name, err)
	}
	defer func() { _ = j.Close() }()

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	fmt.Printf("serving /metrics for %s on %s\n", dir, *addr)
	return http.ListenAndServe(*addr, nil) //nolint:gosec // operator-invoked CLI, not a long-lived service
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
