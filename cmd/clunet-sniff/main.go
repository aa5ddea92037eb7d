// Command clunet-sniff connects to a clunetd/clunet-bridge TCP endpoint and
// prints every frame it forwards, one per line, for live debugging.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"

	"github.com/spf13/pflag"
)

var (
	addr = pflag.StringP("addr", "a", "localhost:4470", "Bridge address to connect to")
	help = pflag.BoolP("help", "h", false, "Display help text")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: clunet-sniff [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "clunet-sniff:", err)
		os.Exit(1)
	}
}

func run() error {
	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", *addr, err)
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "clunet-sniff: connected to %s\n", *addr)

	r := bufio.NewReader(conn)
	for {
		hdr := make([]byte, 4)
		if _, err := readFull(r, hdr); err != nil {
			return fmt.Errorf("reading header: %w", err)
		}
		src, dst, command, size := hdr[0], hdr[1], hdr[2], int(hdr[3])
		payload := make([]byte, size)
		if size > 0 {
			if _, err := readFull(r, payload); err != nil {
				return fmt.Errorf("reading payload: %w", err)
			}
		}
		fmt.Printf("%3d -> %3d  cmd=0x%02x  len=%2d  % x\n", src, dst, command, size, payload)
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := r.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
