// Package main provides csvscan - a streaming CSV tokenizer and loader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/csvquery/csvscan/internal/config"
	"github.com/csvquery/csvscan/internal/parser"
	"github.com/csvquery/csvscan/internal/server"
	"github.com/csvquery/csvscan/internal/simd"
	"github.com/csvquery/csvscan/internal/sink"
	"github.com/csvquery/csvscan/internal/source"
	"github.com/csvquery/csvscan/internal/stream"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-19"
)

// Global state for graceful shutdown
var (
	shutdownChan        = make(chan os.Signal, 1)
	rootCtx, cancelRoot = context.WithCancel(context.Background())
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	if command != "daemon" {
		// the daemon installs its own handler
		setupSignalHandler()
	}

	switch command {
	case "scan":
		runScan(os.Args[2:])
	case "load":
		runLoad(os.Args[2:])
	case "publish":
		runPublish(os.Args[2:])
	case "daemon":
		runDaemon(os.Args[2:])
	case "version":
		fmt.Printf("csvscan v%s (%s)\n", Version, BuildDate)
		fmt.Printf("  scan: %s", simd.Impl())
		if f := simd.Features(); len(f) > 0 {
			fmt.Printf(" [%s]", strings.Join(f, " "))
		}
		fmt.Println()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func setupSignalHandler() {
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	go handleShutdown()
}

// handleShutdown cancels the running stream; a second signal exits.
func handleShutdown() {
	<-shutdownChan
	fmt.Fprintln(os.Stderr, "\n⚠️  Received shutdown signal, stopping...")
	cancelRoot()
	<-shutdownChan
	os.Exit(130)
}

func printUsage() {
	fmt.Println(`csvscan - Streaming CSV Tokenizer

Usage:
    csvscan <command> [arguments] [file ...]

Commands:
    scan     Parse CSV and write rows as JSON, CSV or a count
    load     Copy CSV rows into a PostgreSQL table
    publish  Produce CSV rows to a Kafka topic
    daemon   Start the socket server
    version  Show version and scan implementation
    help     Show this help

Files may be plain, .lz4, .zst or .gz; "-" or no file reads stdin.
Defaults are read from ~/.csvscan (see -config).

Use "csvscan <command> --help" for command-specific options.`)
}

// streamFlags are the flags shared by every command that parses CSV.
type streamFlags struct {
	configPath    *string
	delimiter     *string
	quote         *string
	escape        *string
	null          *string
	bufferSize    *int
	maxBufferSize *int
	maxFields     *int
	impl          *string
	verbose       *bool
}

func addStreamFlags(fs *flag.FlagSet) *streamFlags {
	return &streamFlags{
		configPath:    fs.String("config", "", "Defaults file (default ~/.csvscan)"),
		delimiter:     fs.String("delimiter", ",", "Field delimiter (a byte, or tab, pipe, semicolon, ...)"),
		quote:         fs.String("quote", `"`, "Quote character"),
		escape:        fs.String("escape", "", "Escape character inside quotes (default: the quote)"),
		null:          fs.String("null", "", "Field text read as null"),
		bufferSize:    fs.Int("buffer-size", stream.DefaultBufferSize, "Initial buffer size in bytes"),
		maxBufferSize: fs.Int("max-buffer-size", 0, "Buffer growth limit in bytes (0 = none)"),
		maxFields:     fs.Int("max-fields", 0, "Fields per row limit (0 = none)"),
		impl:          fs.String("impl", "", "Scan implementation (swar, emulated)"),
		verbose:       fs.Bool("verbose", false, "Enable verbose output"),
	}
}

// resolve loads the defaults file and applies the flags set on the command
// line over it.
func (sf *streamFlags) resolve(fs *flag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(*sf.configPath)
	if err != nil {
		return cfg, err
	}

	if *sf.impl != "" {
		if err := simd.Select(*sf.impl); err != nil {
			return cfg, err
		}
	}

	var errs []error
	setByte := func(dst *byte, s string) {
		b, err := config.ParseByte(s)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = b
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "delimiter":
			setByte(&cfg.Delimiter, *sf.delimiter)
		case "quote":
			setByte(&cfg.Quote, *sf.quote)
		case "escape":
			setByte(&cfg.Escape, *sf.escape)
		case "null":
			cfg.Null = *sf.null
		case "buffer-size":
			cfg.BufferSize = *sf.bufferSize
		case "max-buffer-size":
			cfg.MaxBufferSize = *sf.maxBufferSize
		case "max-fields":
			cfg.MaxFields = *sf.maxFields
		}
	})
	return cfg, errors.Join(errs...)
}

// scanFiles streams every input through out. A nil or empty list reads
// stdin.
func scanFiles(files []string, opts stream.Options, out sink.Sink, limit int64, verbose bool) error {
	if len(files) == 0 {
		files = []string{"-"}
	}

	var total int64
	for _, path := range files {
		src, err := source.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return err
		}

		start := time.Now()
		opts.Handle = src.Name
		onRow := func(_ any, rownum int64, row parser.Row) error {
			if err := out.WriteRow(rownum, row); err != nil {
				return err
			}
			total++
			if limit > 0 && total >= limit {
				return stream.ErrStop
			}
			return nil
		}

		res, err := stream.Scan(rootCtx, opts, src, onRow, reportError)
		src.Close()
		if err != nil {
			return err
		}

		if verbose {
			elapsed := time.Since(start)
			mb := float64(res.Bytes) / (1024 * 1024)
			fmt.Fprintf(os.Stderr, "%s: %d rows, %.2f MB in %v (%.1f MB/s, buffer %d)\n",
				src.Name, res.Rows, mb, elapsed.Round(time.Millisecond), mb/elapsed.Seconds(), res.BufferSize)
		}
		if res.Stopped {
			break
		}
	}
	return nil
}

// reportError prints the position of a failed stream.
func reportError(handle any, err error, p *parser.Parser) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", handle, err)
	if e := p.Err(); e != nil {
		fmt.Fprintf(os.Stderr, "  at line %d, field %d (row %d, byte %d)\n", e.Line, e.Field+1, e.Row, e.Char)
	}
}

// runScan handles the scan command
func runScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	sf := addStreamFlags(fs)
	format := fs.String("format", "json", "Output format: json, csv or count")
	output := fs.String("output", "", "Output file, appended to under a lock (default stdout; .lz4/.zst/.gz compress)")
	outDelim := fs.String("out-delimiter", ",", "Delimiter for -format csv")
	limit := fs.Int64("limit", 0, "Stop after N rows (0 = all)")
	_ = fs.Parse(args)

	cfg, err := sf.resolve(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var w io.Writer = os.Stdout
	var file *sink.File
	if *output != "" {
		file, err = sink.CreateFile(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		w = file
	}

	var out sink.Sink
	var counter *sink.CountSink
	switch *format {
	case "json":
		out = sink.NewJSONSink(w)
	case "csv":
		d, err := config.ParseByte(*outDelim)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: -out-delimiter: %v\n", err)
			os.Exit(1)
		}
		out = sink.NewCSVSink(w, d, cfg.Null)
	case "count":
		counter = sink.NewCountSink()
		out = counter
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
		os.Exit(1)
	}

	scanErr := scanFiles(fs.Args(), cfg.StreamOptions(), out, *limit, *sf.verbose)
	if err := out.Close(); err != nil && scanErr == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		scanErr = err
	}
	if counter != nil {
		fmt.Fprintf(w, "rows=%d fields=%d nulls=%d quoted=%d bytes=%d max-fields=%d\n",
			counter.Rows, counter.Fields, counter.Nulls, counter.Quoted, counter.Bytes, counter.MaxFields)
	}
	if file != nil {
		if err := file.Close(); err != nil && scanErr == nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			scanErr = err
		}
	}
	if scanErr != nil {
		os.Exit(1)
	}
}

// runLoad handles the load command
func runLoad(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	sf := addStreamFlags(fs)
	uri := fs.String("uri", "", "PostgreSQL connection URI")
	table := fs.String("table", "", "Target table (schema.table)")
	columns := fs.String("columns", "", "Comma separated target columns (default: header row of each input)")
	batch := fs.Int("batch", sink.DefaultBatch, "Rows per COPY")
	_ = fs.Parse(args)

	cfg, err := sf.resolve(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *uri == "" {
		*uri = cfg.PostgresURI
	}
	if *table == "" {
		*table = cfg.PostgresTable
	}
	if *uri == "" || *table == "" {
		fmt.Fprintln(os.Stderr, "Error: --uri and --table are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	pg, err := sink.NewPostgresSink(rootCtx, *uri, *table, config.SplitList(*columns), *batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	scanErr := scanFiles(fs.Args(), cfg.StreamOptions(), pg, 0, *sf.verbose)
	if err := pg.Close(); err != nil && scanErr == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		scanErr = err
	}
	fmt.Printf("Copied %d rows into %s\n", pg.Copied, *table)
	if scanErr != nil {
		os.Exit(1)
	}
}

// runPublish handles the publish command
func runPublish(args []string) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	sf := addStreamFlags(fs)
	brokers := fs.String("brokers", "", "Comma separated seed brokers")
	topic := fs.String("topic", "", "Target topic")
	batch := fs.Int("batch", 1000, "Records per produce call")
	_ = fs.Parse(args)

	cfg, err := sf.resolve(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	seeds := config.SplitList(*brokers)
	if len(seeds) == 0 {
		seeds = cfg.KafkaBrokers
	}
	if *topic == "" {
		*topic = cfg.KafkaTopic
	}
	if len(seeds) == 0 || *topic == "" {
		fmt.Fprintln(os.Stderr, "Error: --brokers and --topic are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	k, err := sink.NewKafkaSink(rootCtx, seeds, *topic, *batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	scanErr := scanFiles(fs.Args(), cfg.StreamOptions(), k, 0, *sf.verbose)
	if err := k.Close(); err != nil && scanErr == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		scanErr = err
	}
	fmt.Printf("Produced %d records to %s\n", k.Produced, *topic)
	if scanErr != nil {
		os.Exit(1)
	}
}

// runDaemon handles the daemon command
func runDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	sf := addStreamFlags(fs)
	network := fs.String("network", "", "unix or tcp")
	address := fs.String("address", "", "Socket path or host:port")
	workers := fs.Int("workers", 0, "Max concurrency")
	idle := fs.Duration("idle-timeout", 30*time.Second, "Close connections idle this long")
	_ = fs.Parse(args)

	cfg, err := sf.resolve(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *network == "" {
		*network = cfg.DaemonNetwork
	}
	if *address == "" {
		*address = cfg.DaemonAddress
	}
	if *workers <= 0 {
		*workers = cfg.DaemonWorkers
	}

	err = server.RunDaemon(server.DaemonConfig{
		Network:        *network,
		Address:        *address,
		MaxConcurrency: *workers,
		IdleTimeout:    *idle,
		Options:        cfg.StreamOptions(),
		Verbose:        *sf.verbose,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Daemon Error: %v\n", err)
		os.Exit(1)
	}
}
