package sink

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/csvquery/csvscan/internal/parser"
	"github.com/csvquery/csvscan/internal/source"
)

// feed parses input with the given null text and writes every row to s.
func feed(t *testing.T, s Sink, input, null string) {
	t.Helper()
	p := parser.Open(parser.Config{Null: null})
	defer p.Close()

	buf := []byte(input)
	for len(buf) > 0 {
		row, n, err := p.Feed(buf)
		if err == nil && n == 0 {
			row, n, err = p.FeedLast(buf)
		}
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if n == 0 {
			t.Fatalf("incomplete row in %q", buf)
		}
		if err := s.WriteRow(p.Rows(), row); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
		buf = buf[n:]
	}
}

func TestJSONSink(t *testing.T) {
	var out bytes.Buffer
	s := NewJSONSink(&out)
	feed(t, s, "a,\"b,c\",\\N\n\"<x>\",,\"\"\n", `\N`)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	want := `["a","b,c",null]` + "\n" + `["<x>","",""]` + "\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestCSVSink(t *testing.T) {
	tests := []struct {
		name  string
		delim byte
		null  string
		input string
		want  string
	}{
		{"passthrough", ',', "", "a,b\nc,d\n", "a,b\nc,d\n"},
		{"requote", ',', "", "\"x,y\",\"say \"\"hi\"\"\"\n", "\"x,y\",\"say \"\"hi\"\"\"\n"},
		{"tab out", '\t', "", "a,b\n", "a\tb\n"},
		{"null text", ',', "NULL", "a,NULL\n", "a,NULL\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			s := NewCSVSink(&out, tt.delim, tt.null)
			feed(t, s, tt.input, tt.null)
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}
			if out.String() != tt.want {
				t.Errorf("got %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestCountSink(t *testing.T) {
	s := NewCountSink()
	feed(t, s, "a,,\"q\"\nbb,c\nlast", "")
	if s.Rows != 3 {
		t.Errorf("Rows = %d, want 3", s.Rows)
	}
	if s.Fields != 6 {
		t.Errorf("Fields = %d, want 6", s.Fields)
	}
	if s.Nulls != 1 {
		t.Errorf("Nulls = %d, want 1", s.Nulls)
	}
	if s.Quoted != 1 {
		t.Errorf("Quoted = %d, want 1", s.Quoted)
	}
	if s.MaxFields != 3 {
		t.Errorf("MaxFields = %d, want 3", s.MaxFields)
	}
	// a + q + bb + c + last
	if s.Bytes != 9 {
		t.Errorf("Bytes = %d, want 9", s.Bytes)
	}
}

func TestCreateFileAppends(t *testing.T) {
	// each CreateFile appends a new gzip member or zstd frame
	for _, name := range []string{"out.csv", "out.csv.zst", "out.csv.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			writeFile(t, path, "a,b\n")
			writeFile(t, path, "c,d\n")

			src, err := source.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer src.Close()
			got, err := io.ReadAll(src)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != "a,b\nc,d\n" {
				t.Errorf("content = %q", got)
			}
		})
	}
}

func TestCreateFileLZ4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv.lz4")
	writeFile(t, path, "a,\"b\nc\"\n")

	src, err := source.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatal(err)
	}
	if want := "a,\"b\nc\"\n"; string(got) != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func writeFile(t *testing.T, path, input string) {
	t.Helper()
	f, err := CreateFile(path)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	s := NewCSVSink(f, ',', "")
	feed(t, s, input, "")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSinkHeader(t *testing.T) {
	s := newPostgresSink(context.Background(), nil, "public.items", nil, 10)
	feed(t, s, "id,name\n", "")
	if got := strings.Join(s.Columns(), ","); got != "id,name" {
		t.Errorf("columns = %q", got)
	}
	if len(s.pending) != 0 {
		t.Errorf("header row queued for copy")
	}

	p := parser.Open(parser.Config{})
	row, _, _ := p.Feed([]byte("1,2,3\n"))
	if err := s.WriteRow(2, row); err == nil {
		t.Error("expected column count mismatch")
	}
}

func TestPostgresSinkHeaderPerInput(t *testing.T) {
	s := newPostgresSink(context.Background(), nil, "items", nil, 10)
	feed(t, s, "id,name\n1,one\n", "")
	feed(t, s, "id,name\n2,two\n", "")
	if len(s.pending) != 2 {
		t.Fatalf("pending = %d rows, want 2", len(s.pending))
	}
	if got := s.pending[1][0]; got != "2" {
		t.Errorf("second input's first data row = %v, want 2", got)
	}

	p := parser.Open(parser.Config{})
	row, _, _ := p.Feed([]byte("name,id\n"))
	if err := s.WriteRow(1, row); err == nil {
		t.Error("expected header mismatch error")
	}

	explicit := newPostgresSink(context.Background(), nil, "items", []string{"a", "b"}, 10)
	feed(t, explicit, "x,y\n", "")
	if len(explicit.pending) != 1 {
		t.Errorf("with explicit columns row 1 is data: pending = %d", len(explicit.pending))
	}
}

// Set CSVSCAN_TEST_PG_URI to run against a live server.
func TestPostgresSinkCopy(t *testing.T) {
	uri := os.Getenv("CSVSCAN_TEST_PG_URI")
	if uri == "" {
		t.Skip("CSVSCAN_TEST_PG_URI not set")
	}
	ctx := context.Background()

	s, err := NewPostgresSink(ctx, uri, "csvscan_test", nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.conn.Exec(ctx, "CREATE TEMP TABLE csvscan_test (id text, name text)"); err != nil {
		t.Fatal(err)
	}
	feed(t, s, "id,name\n1,one\n2,\n3,three\n", "")
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	var total, nulls int
	if err := s.conn.QueryRow(ctx, "SELECT count(*), count(*) FILTER (WHERE name IS NULL) FROM csvscan_test").Scan(&total, &nulls); err != nil {
		t.Fatal(err)
	}
	if total != 3 || nulls != 1 {
		t.Errorf("rows = %d, nulls = %d; want 3, 1", total, nulls)
	}
	if s.Copied != 3 {
		t.Errorf("Copied = %d", s.Copied)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

// Set CSVSCAN_TEST_KAFKA to a broker address to run against a live cluster.
func TestKafkaSink(t *testing.T) {
	broker := os.Getenv("CSVSCAN_TEST_KAFKA")
	if broker == "" {
		t.Skip("CSVSCAN_TEST_KAFKA not set")
	}
	s, err := NewKafkaSink(context.Background(), []string{broker}, "csvscan-test", 2)
	if err != nil {
		t.Fatal(err)
	}
	feed(t, s, "a,b\nc,d\ne,f\n", "")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Produced != 3 {
		t.Errorf("Produced = %d, want 3", s.Produced)
	}
}

func TestKafkaSinkArgs(t *testing.T) {
	if _, err := NewKafkaSink(context.Background(), nil, "t", 0); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaSink(context.Background(), []string{"localhost:9092"}, "", 0); err == nil {
		t.Error("expected error without topic")
	}
}
