package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
)

// Writes 100m.csv: 100M rows mixing plain, quoted, escaped, multi-line and
// null (\N) fields.
func main() {
	file, err := os.Create("100m.csv")
	if err != nil {
		panic(err)
	}
	defer file.Close()

	w := bufio.NewWriterSize(file, 64*1024)

	// Headers
	w.WriteString("id,name,score,comment,active\r\n")

	limit := 100_000_000

	for i := 0; i < limit; i++ {
		w.WriteString(strconv.Itoa(i))
		w.WriteString(",user")
		w.WriteString(strconv.Itoa(i % 1000))
		w.WriteString(",")
		if i%7 == 0 {
			w.WriteString(`\N`)
		} else {
			w.WriteString(strconv.Itoa(i % 100))
		}
		w.WriteString(",")
		switch i % 5 {
		case 0:
			w.WriteString(`"plain quoted"`)
		case 1:
			w.WriteString(`"has ""escaped"" quotes, and a comma"`)
		case 2:
			w.WriteString("\"two\nlines\"")
		case 3:
			w.WriteString("")
		default:
			w.WriteString("unquoted")
		}
		if i%2 == 0 {
			w.WriteString(",true\r\n")
		} else {
			w.WriteString(",false\r\n")
		}

		if i%1_000_000 == 0 {
			fmt.Printf("\rGenerated %dM rows...", i/1_000_000)
		}
	}
	w.Flush()
	fmt.Println("\nDone: 100m.csv")
}
