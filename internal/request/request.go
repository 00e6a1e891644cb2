package request

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tinyhttpd/internal/headers"
)

const (
	// MaxHeaderSize bounds the request line plus all header lines.
	MaxHeaderSize = 8 << 10
	// MaxBodySize bounds a body announced through Content-Length.
	MaxBodySize = 1 << 20

	bufferSize = 1024
)

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrHeaderTooLarge       = errors.New("request header too large")
	ErrInvalidContentLength = errors.New("invalid Content-Length")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrIncompleteBody       = errors.New("request body shorter than Content-Length")
)

// RequestLine holds the parsed first line of a request
type RequestLine struct {
	Method        string
	RequestTarget string
	HttpVersion   string
}

// Request is a fully parsed HTTP request
type Request struct {
	RequestLine RequestLine
	Headers     headers.Headers
	Body        []byte
}

// Method returns the request method, e.g. "GET"
func (r *Request) Method() string {
	return r.RequestLine.Method
}

// Path returns the request target as sent by the client
func (r *Request) Path() string {
	return r.RequestLine.RequestTarget
}

// Header returns a header value by its exact name
func (r *Request) Header(key string) (string, bool) {
	return r.Headers.Get(key)
}

// RequestFromReader parses one request from r.
//
// The request line must carry at least a method and a target; the protocol
// version is optional. A body is read to its Content-Length when one is given.
// Without Content-Length the body is whatever arrived together with the
// header block, and no further read is attempted.
func RequestFromReader(r io.Reader) (*Request, error) {
	p := &parser{r: bufio.NewReaderSize(r, bufferSize)}

	line, err := p.readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read request line: %w", err)
	}
	requestLine, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	req := &Request{
		RequestLine: requestLine,
		Headers:     headers.NewHeaders(),
	}

	for {
		line, err := p.readLine()
		if err == io.EOF {
			// Client closed its side before the blank line: no body follows.
			return req, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read headers: %w", err)
		}
		if line == "" {
			break
		}
		req.Headers.ParseLine(line)
	}

	req.Body, err = p.readBody(req.Headers)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func parseRequestLine(line string) (RequestLine, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return RequestLine{}, fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
	rl := RequestLine{
		Method:        fields[0],
		RequestTarget: fields[1],
	}
	if len(fields) > 2 {
		rl.HttpVersion = strings.TrimPrefix(fields[2], "HTTP/")
	}
	return rl, nil
}

type parser struct {
	r        *bufio.Reader
	consumed int
}

// readLine returns the next line without its trailing "\n" or "\r\n".
// It is bufio.Reader.ReadLine with the header size limit applied.
func (p *parser) readLine() (string, error) {
	var line []byte
	for {
		l, more, err := p.r.ReadLine()
		if err != nil {
			return "", err
		}
		p.consumed += len(l)
		if p.consumed > MaxHeaderSize {
			return "", ErrHeaderTooLarge
		}
		line = append(line, l...)
		if !more {
			break
		}
	}
	return string(line), nil
}

func (p *parser) readBody(h headers.Headers) ([]byte, error) {
	raw, ok := h.Lookup("Content-Length")
	if !ok {
		n := p.r.Buffered()
		if n == 0 {
			return nil, nil
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(p.r, body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIncompleteBody, err)
		}
		return body, nil
	}

	length, err := strconv.Atoi(raw)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentLength, raw)
	}
	if length > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(p.r, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompleteBody, err)
	}
	return body, nil
}
