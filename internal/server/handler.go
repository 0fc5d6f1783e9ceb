package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/csvquery/csvscan/internal/config"
	"github.com/csvquery/csvscan/internal/parser"
	"github.com/csvquery/csvscan/internal/sink"
	"github.com/csvquery/csvscan/internal/stream"
)

// maxRequestLine bounds the JSON request line.
const maxRequestLine = 64 * 1024

// DaemonRequest is the JSON request line sent by a client.
type DaemonRequest struct {
	Action    string  `json:"action"`
	Delimiter string  `json:"delimiter,omitempty"`
	Quote     string  `json:"quote,omitempty"`
	Escape    string  `json:"escape,omitempty"`
	Null      *string `json:"null,omitempty"`
	Limit     int64   `json:"limit,omitempty"`
}

// Summary ends a scan or count reply.
type Summary struct {
	Status  string `json:"status"`
	Rows    int64  `json:"rows"`
	Bytes   int64  `json:"bytes"`
	Stopped bool   `json:"stopped,omitempty"`

	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Line  int64  `json:"line,omitempty"`
	Row   int64  `json:"row,omitempty"`
	Field *int   `json:"field,omitempty"`
	Char  *int64 `json:"char,omitempty"`
}

// deadlineConn refreshes the connection deadlines on every read and write.
type deadlineConn struct {
	net.Conn
	ctx         context.Context
	read, write time.Duration
}

func (c deadlineConn) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.read))
	return c.Conn.Read(p)
}

func (c deadlineConn) Write(p []byte) (int, error) {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.write))
	return c.Conn.Write(p)
}

// handleConnection processes a single client connection.
func (d *Daemon) handleConnection(conn net.Conn) {
	defer d.wg.Done()
	defer func() { _ = conn.Close() }()

	// Acquire worker slot
	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-d.shutdown:
		return
	}

	// unblock reads and writes once the daemon shuts down
	stop := context.AfterFunc(d.ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	dc := deadlineConn{Conn: conn, ctx: d.ctx, read: d.config.IdleTimeout, write: d.config.WriteTimeout}
	reader := bufio.NewReaderSize(dc, maxRequestLine)

	for {
		line, err := reader.ReadSlice('\n')
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				_ = writeLine(dc, errorResponse("request line too long"))
			}
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var req DaemonRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = writeLine(dc, errorResponse("invalid JSON: "+err.Error()))
			return
		}

		switch req.Action {
		case "ping":
			if writeLine(dc, successResponse(map[string]any{"pong": true})) != nil {
				return
			}
		case "status":
			if writeLine(dc, d.handleStatus()) != nil {
				return
			}
		case "scan", "count":
			// the body runs to the end of the connection
			d.handleStream(req, reader, dc)
			return
		default:
			_ = writeLine(dc, errorResponse("unknown action: "+req.Action))
			return
		}
	}
}

// handleStream parses the CSV body in r and answers on w.
func (d *Daemon) handleStream(req DaemonRequest, r io.Reader, w io.Writer) {
	d.streams.Add(1)

	opts, err := d.requestOptions(req)
	if err != nil {
		d.failures.Add(1)
		_ = writeLine(w, errorResponse(err.Error()))
		return
	}

	var out sink.Sink
	var rows *sink.JSONSink
	if req.Action == "scan" {
		rows = sink.NewJSONSink(w)
		out = rows
	} else {
		out = sink.NewCountSink()
	}

	var diag *parser.Error
	onRow := func(_ any, rownum int64, row parser.Row) error {
		if err := out.WriteRow(rownum, row); err != nil {
			return err
		}
		if req.Limit > 0 && rownum >= req.Limit {
			return stream.ErrStop
		}
		return nil
	}
	onError := func(_ any, err error, p *parser.Parser) {
		diag = p.Err()
	}

	res, err := stream.Scan(d.ctx, opts, r, onRow, onError)
	d.rows.Add(res.Rows)
	d.bytes.Add(res.Bytes)

	if cerr := out.Close(); err == nil {
		err = cerr
	}

	summary := Summary{Status: "ok", Rows: res.Rows, Bytes: res.Bytes, Stopped: res.Stopped}
	if err != nil {
		d.failures.Add(1)
		summary.Status = "error"
		summary.Error = err.Error()
		var perr *parser.Error
		if errors.As(err, &perr) {
			diag = perr
		}
		if diag != nil {
			summary.Kind = diag.Kind.String()
			summary.Line = diag.Line
			summary.Row = diag.Row
			summary.Field = &diag.Field
			summary.Char = &diag.Char
		}
		if d.config.Verbose {
			log.Printf("stream failed after %d rows: %v", res.Rows, err)
		}
	}

	b, _ := json.Marshal(summary)
	_ = writeLine(w, b)
}

// requestOptions applies the dialect of req to the daemon defaults.
func (d *Daemon) requestOptions(req DaemonRequest) (stream.Options, error) {
	opts := d.config.Options
	for _, f := range []struct {
		val string
		dst *byte
	}{
		{req.Delimiter, &opts.Delimiter},
		{req.Quote, &opts.Quote},
		{req.Escape, &opts.Escape},
	} {
		if f.val == "" {
			continue
		}
		b, err := config.ParseByte(f.val)
		if err != nil {
			return opts, err
		}
		*f.dst = b
	}
	if req.Null != nil {
		opts.Null = *req.Null
	}
	return opts, nil
}

// handleStatus returns daemon status.
func (d *Daemon) handleStatus() []byte {
	return successResponse(map[string]any{
		"network":     d.config.Network,
		"address":     d.Addr().String(),
		"uptime":      time.Since(d.started).Round(time.Second).String(),
		"connections": d.connections.Load(),
		"streams":     d.streams.Load(),
		"failures":    d.failures.Load(),
		"rows":        d.rows.Load(),
		"bytes":       d.bytes.Load(),
	})
}

func writeLine(w io.Writer, b []byte) error {
	_, err := w.Write(append(b, '\n'))
	return err
}

// errorResponse creates an error JSON response.
func errorResponse(msg string) []byte {
	b, _ := json.Marshal(map[string]any{
		"status": "error",
		"error":  msg,
	})
	return b
}

// successResponse creates a success JSON response.
func successResponse(data map[string]any) []byte {
	data["status"] = "ok"
	b, _ := json.Marshal(data)
	return b
}
