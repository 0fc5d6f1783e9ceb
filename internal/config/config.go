// Package config reads csvscan defaults from an ini file, by default
// ~/.csvscan:
//
//	[csv]
//	delimiter = tab
//	quote = "
//	null = \N
//
//	[stream]
//	buffer-size = 4194304
//
//	[postgres]
//	uri = postgres://localhost/warehouse
//	table = staging.events
//
//	[kafka]
//	brokers = k1:9092,k2:9092
//	topic = events
//
//	[daemon]
//	network = unix
//	address = /tmp/csvscan.sock
//	workers = 50
//
// Values go through os.ExpandEnv. Command-line flags override the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ini "github.com/lars-t-hansen/ini"

	"github.com/csvquery/csvscan/internal/stream"
)

// Config holds every tunable.
type Config struct {
	Quote     byte
	Escape    byte
	Delimiter byte
	Null      string

	BufferSize    int
	MaxBufferSize int
	MaxFields     int

	PostgresURI   string
	PostgresTable string

	KafkaBrokers []string
	KafkaTopic   string

	DaemonNetwork string
	DaemonAddress string
	DaemonWorkers int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Quote:         '"',
		Delimiter:     ',',
		BufferSize:    stream.DefaultBufferSize,
		DaemonNetwork: "unix",
		DaemonAddress: "/tmp/csvscan.sock",
		DaemonWorkers: 50,
	}
}

// DefaultPath returns ~/.csvscan, or "" when HOME is unset.
func DefaultPath() string {
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(filepath.Clean(home), ".csvscan")
}

// Load reads path on top of Default. A missing file at the default path is
// not an error; a missing file given explicitly is.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return Default(), nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("error in trying to open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("error in trying to parse %s: %w", path, err)
	}
	return cfg, nil
}

type fields struct {
	parse func(io.Reader) (*ini.Store, error)

	quote, escape, delimiter, null           *ini.Field
	bufferSize, maxBufferSize, maxFields     *ini.Field
	pgURI, pgTable                           *ini.Field
	kafkaBrokers, kafkaTopic                 *ini.Field
	daemonNetwork, daemonAddress, daemonWork *ini.Field
}

func newFields() *fields {
	p := ini.NewParser()
	csv := p.AddSection("csv")
	st := p.AddSection("stream")
	pg := p.AddSection("postgres")
	kafka := p.AddSection("kafka")
	daemon := p.AddSection("daemon")
	return &fields{
		parse:         p.Parse,
		quote:         csv.AddString("quote"),
		escape:        csv.AddString("escape"),
		delimiter:     csv.AddString("delimiter"),
		null:          csv.AddString("null"),
		bufferSize:    st.AddString("buffer-size"),
		maxBufferSize: st.AddString("max-buffer-size"),
		maxFields:     st.AddString("max-fields"),
		pgURI:         pg.AddString("uri"),
		pgTable:       pg.AddString("table"),
		kafkaBrokers:  kafka.AddString("brokers"),
		kafkaTopic:    kafka.AddString("topic"),
		daemonNetwork: daemon.AddString("network"),
		daemonAddress: daemon.AddString("address"),
		daemonWork:    daemon.AddString("workers"),
	}
}

// Parse reads ini text on top of Default.
func Parse(r io.Reader) (Config, error) {
	fs := newFields()
	store, err := fs.parse(r)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	get := func(f *ini.Field) (string, bool) {
		if !f.Present(store) {
			return "", false
		}
		return os.ExpandEnv(f.StringVal(store)), true
	}

	var errs []error
	setByte := func(dst *byte, name string, f *ini.Field) {
		if s, ok := get(f); ok {
			b, err := ParseByte(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	setInt := func(dst *int, name string, f *ini.Field) {
		if s, ok := get(f); ok {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || n < 0 {
				errs = append(errs, fmt.Errorf("%s: bad value %q", name, s))
				return
			}
			*dst = n
		}
	}
	setString := func(dst *string, f *ini.Field) {
		if s, ok := get(f); ok {
			*dst = s
		}
	}

	setByte(&cfg.Quote, "csv.quote", fs.quote)
	setByte(&cfg.Escape, "csv.escape", fs.escape)
	setByte(&cfg.Delimiter, "csv.delimiter", fs.delimiter)
	setString(&cfg.Null, fs.null)
	setInt(&cfg.BufferSize, "stream.buffer-size", fs.bufferSize)
	setInt(&cfg.MaxBufferSize, "stream.max-buffer-size", fs.maxBufferSize)
	setInt(&cfg.MaxFields, "stream.max-fields", fs.maxFields)
	setString(&cfg.PostgresURI, fs.pgURI)
	setString(&cfg.PostgresTable, fs.pgTable)
	if s, ok := get(fs.kafkaBrokers); ok {
		cfg.KafkaBrokers = SplitList(s)
	}
	setString(&cfg.KafkaTopic, fs.kafkaTopic)
	setString(&cfg.DaemonNetwork, fs.daemonNetwork)
	setString(&cfg.DaemonAddress, fs.daemonAddress)
	setInt(&cfg.DaemonWorkers, "daemon.workers", fs.daemonWork)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StreamOptions returns the driver options for cfg.
func (c Config) StreamOptions() stream.Options {
	return stream.Options{
		Quote:         c.Quote,
		Escape:        c.Escape,
		Delimiter:     c.Delimiter,
		Null:          c.Null,
		BufferSize:    c.BufferSize,
		MaxBufferSize: c.MaxBufferSize,
		MaxFields:     c.MaxFields,
	}
}

var byteNames = map[string]byte{
	"tab":       '\t',
	"comma":     ',',
	"semicolon": ';',
	"pipe":      '|',
	"space":     ' ',
	"dquote":    '"',
	"squote":    '\'',
	"backslash": '\\',
}

// ParseByte reads a single-byte setting: the byte itself, a name such as
// "tab" or "pipe", or an escape like "\t" or "\x1f".
func ParseByte(s string) (byte, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	if b, ok := byteNames[strings.ToLower(s)]; ok {
		return b, nil
	}
	if strings.HasPrefix(s, `\`) {
		u, err := strconv.Unquote(`'` + s + `'`)
		if err == nil && len(u) == 1 {
			return u[0], nil
		}
	}
	return 0, fmt.Errorf("not a single byte: %q", s)
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
