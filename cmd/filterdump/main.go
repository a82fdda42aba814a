// This tool applies a named filter chain to stdin and writes the
// decoded or encoded result to stdout.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benoitkugler/filterio/filters"
	"github.com/benoitkugler/filterio/stream"
)

func check(err error) {
	if err != nil {
		fmt.Println("fatal error", err)
		os.Exit(1)
	}
}

func main() {
	chain := flag.String("chain", filters.ASCII85, "comma-separated filter names (decoder names), applied left to right")
	encode := flag.Bool("encode", false, "run the encoder half of each filter, in reverse order, instead of decoding")
	flag.Parse()

	reg := filters.NewRegistry()
	check(filters.InitStandardFilters(reg))

	names := strings.Split(*chain, ",")

	raw, err := io.ReadAll(os.Stdin)
	check(err)

	if *encode {
		runEncode(reg, names, raw)
		return
	}
	runDecode(reg, names, raw)
}

// runDecode wires the named decoders around the raw input bytes, the
// first name closest to the data, and streams the fully decoded result
// to stdout.
func runDecode(reg *filters.Registry, names []string, raw []byte) {
	var s *stream.Stream = stream.NewInputBytes(raw)
	for _, name := range names {
		d, err := reg.Find(name)
		check(err)
		s, err = d.Open(stream.Input, s, nil)
		check(err)
	}
	_, err := io.Copy(os.Stdout, s)
	check(err)
}

// runEncode wires the named encoders around an stdout sink so the first
// name in the chain sits closest to stdout and raw passes through the
// last name's encoder first, the reverse of runDecode's order, so that
// decoding the output with the same chain restores raw.
func runEncode(reg *filters.Registry, names []string, raw []byte) {
	out := bufio.NewWriter(os.Stdout)
	s := stream.NewOutputWriter(out)
	for _, name := range names {
		if inv, ok := filters.InverseName(name); ok {
			name = inv
		}
		d, err := reg.Find(name)
		check(err)
		s, err = d.Open(stream.Output, s, nil)
		check(err)
	}
	_, err := s.Write(raw)
	check(err)
	check(s.Close(true))
	check(out.Flush())
}
