package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"sort"

	"tinyhttpd/internal/request"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4221", "Address to listen on")
	flag.Parse()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()
	fmt.Println("Listening on", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to accept connection: %v\n", err)
			continue
		}
		fmt.Println("Connection accepted")

		go func(c net.Conn) {
			defer c.Close()

			req, err := request.RequestFromReader(c)
			if err != nil {
				fmt.Printf("Error parsing request: %v\n", err)
				return
			}
			fmt.Println("Request line:")
			fmt.Printf("- Method: %s\n", req.Method())
			fmt.Printf("- Target: %s\n", req.Path())
			fmt.Printf("- Version: %s\n", req.RequestLine.HttpVersion)

			fmt.Println("Headers:")
			keys := make([]string, 0, len(req.Headers))
			for k := range req.Headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("- %s: %s\n", k, req.Headers[k])
			}

			fmt.Println("Body:")
			fmt.Println(string(req.Body))
			fmt.Println("Connection closed")
		}(conn)
	}
}
