package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"
)

// rawclient reads request text from stdin, sends it with CRLF header lines,
// and prints whatever the server answers before closing the connection.
func main() {
	addr := flag.String("addr", "127.0.0.1:4221", "Server address")
	timeout := flag.Duration("timeout", 5*time.Second, "Connection deadline")
	flag.Parse()

	raw, err := readRequest(os.Stdin)
	if err != nil {
		log.Fatalf("failed to read request from stdin: %v", err)
	}

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(*timeout)); err != nil {
		log.Fatalf("failed to set deadline: %v", err)
	}

	if _, err := io.WriteString(conn, raw); err != nil {
		log.Fatalf("failed to send request: %v", err)
	}

	if _, err := io.Copy(os.Stdout, conn); err != nil {
		log.Printf("error reading response: %v", err)
	}
	fmt.Println()
}

// readRequest turns bare "\n" line endings into "\r\n" up to the blank line
// and makes sure the header block is terminated. The body is sent verbatim
// so a hand-written Content-Length stays correct.
func readRequest(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	rest := string(data)
	for rest != "" {
		line, after, found := strings.Cut(rest, "\n")
		line = strings.TrimSuffix(line, "\r")
		b.WriteString(line)
		b.WriteString("\r\n")
		rest = after
		if found && line == "" {
			b.WriteString(rest)
			return b.String(), nil
		}
	}
	b.WriteString("\r\n")
	return b.String(), nil
}
