package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/csvquery/csvscan/internal/parser"
	"github.com/csvquery/csvscan/internal/simd"
	"github.com/csvquery/csvscan/internal/sink"
	"github.com/csvquery/csvscan/internal/source"
	"github.com/csvquery/csvscan/internal/stream"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: benchmark <size_mb>")
		return
	}

	sizeMB, err := strconv.Atoi(os.Args[1])
	if err != nil || sizeMB <= 0 {
		sizeMB = 500 // Default 500MB
	}

	// Generate File
	fmt.Printf("Generating %d MB CSV...\n", sizeMB)
	tmpDir, _ := os.MkdirTemp("", "csv_bench")
	defer os.RemoveAll(tmpDir)

	csvPath := filepath.Join(tmpDir, "bench.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		panic(err)
	}

	w := bufio.NewWriterSize(f, 64*1024)
	w.WriteString("id,code,value,description\n")

	bytesWritten := int64(0)
	limit := int64(sizeMB) * 1024 * 1024

	rows := 0
	buf := make([]byte, 0, 1024)

	rng := rand.New(rand.NewSource(123))

	for bytesWritten < limit {
		rows++
		buf = buf[:0]
		switch rng.Intn(4) {
		case 0:
			buf = fmt.Appendf(buf, "%d,US-%d,,\"Item %d, \"\"boxed\"\"\nsecond line\"\n", rows, rng.Intn(1000), rows)
		default:
			buf = fmt.Appendf(buf, "%d,US-%d,%d,\"Description for item %d with some padding to make it longer\"\n", rows, rng.Intn(1000), rng.Intn(10000), rows)
		}

		n, _ := w.Write(buf)
		bytesWritten += int64(n)
	}
	w.Flush()
	f.Close()

	fmt.Printf("Generated %d rows (%.2f MB)\n", rows, float64(bytesWritten)/1024/1024)

	for _, impl := range []string{"swar", "emulated"} {
		if err := simd.Select(impl); err != nil {
			panic(err)
		}
		fmt.Printf("\nScanning with %s...\n", impl)

		src, err := source.Open(csvPath)
		if err != nil {
			panic(err)
		}
		count := sink.NewCountSink()
		onRow := func(_ any, rownum int64, row parser.Row) error {
			return count.WriteRow(rownum, row)
		}

		start := time.Now()
		res, err := stream.Scan(context.Background(), stream.Options{}, src, onRow, nil)
		elapsed := time.Since(start)
		src.Close()
		if err != nil {
			panic(err)
		}

		mbPerSec := float64(res.Bytes) / 1024 / 1024 / elapsed.Seconds()
		fmt.Printf("--------------------------------------------------\n")
		fmt.Printf("Rows:       %d (%d fields, %d null, %d quoted)\n", count.Rows, count.Fields, count.Nulls, count.Quoted)
		fmt.Printf("Throughput: %.2f MB/s\n", mbPerSec)
		fmt.Printf("Time:       %v\n", elapsed)
		fmt.Printf("Buffer:     %d bytes\n", res.BufferSize)
		fmt.Printf("--------------------------------------------------\n")
	}
}
