package response

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"

	"tinyhttpd/internal/headers"
)

// StatusCode represents an HTTP status code
type StatusCode int

// HTTP status codes we support
const (
	StatusOK                  StatusCode = 200
	StatusCreated             StatusCode = 201
	StatusBadRequest          StatusCode = 400
	StatusNotFound            StatusCode = 404
	StatusInternalServerError StatusCode = 500
)

// Content types used by the routes
const (
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// body headers go first, in this order
var headerOrder = []string{"Content-Type", "Content-Length"}

// bodyTrailer follows every body
const bodyTrailer = "\r\n\r\n"

// ReasonPhrase returns the reason phrase sent on the status line
func ReasonPhrase(statusCode StatusCode) string {
	switch statusCode {
	case StatusOK:
		return "OK"
	case StatusCreated:
		return "Created"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusInternalServerError:
		return "Internal Server Error"
	default:
		return ""
	}
}

// WriteStatusLine writes the HTTP status line to the writer
func WriteStatusLine(w io.Writer, statusCode StatusCode) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", int(statusCode), ReasonPhrase(statusCode))
	return err
}

// GetDefaultHeaders returns the headers that describe a body
func GetDefaultHeaders(contentType string, contentLen int) headers.Headers {
	h := headers.NewHeaders()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(contentLen))
	return h
}

// WriteHeaders writes HTTP headers followed by the blank line.
// Content-Type and Content-Length lead; any other keys follow sorted.
func WriteHeaders(w io.Writer, h headers.Headers) error {
	keys := make([]string, 0, len(h))
	for _, key := range headerOrder {
		if _, ok := h[key]; ok {
			keys = append(keys, key)
		}
	}
	rest := make([]string, 0, len(h))
	for key := range h {
		if key != "Content-Type" && key != "Content-Length" {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	for _, key := range keys {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", key, h[key]); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "\r\n")
	return err
}

// writerState tracks the state of the response writer
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
	stateBodyWritten
)

// Writer provides a structured way to write HTTP responses.
// Output is buffered until Flush, which the Respond helpers call.
type Writer struct {
	writer *bufio.Writer
	state  writerState
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer: bufio.NewWriter(w),
		state:  stateStart,
	}
}

// Written reports whether a status line has been committed
func (w *Writer) Written() bool {
	return w.state != stateStart
}

// WriteStatusLine writes the HTTP status line
func (w *Writer) WriteStatusLine(statusCode StatusCode) error {
	if w.state != stateStart {
		return fmt.Errorf("status line must be written first")
	}

	err := WriteStatusLine(w.writer, statusCode)
	if err == nil {
		w.state = stateStatusWritten
	}
	return err
}

// WriteHeaders writes the HTTP headers
func (w *Writer) WriteHeaders(h headers.Headers) error {
	if w.state != stateStatusWritten {
		return fmt.Errorf("headers must be written after status line and before body")
	}

	err := WriteHeaders(w.writer, h)
	if err == nil {
		w.state = stateHeadersWritten
	}
	return err
}

// WriteBody writes the response body and its trailing CRLF pair
func (w *Writer) WriteBody(p []byte) (int, error) {
	if w.state != stateHeadersWritten {
		return 0, fmt.Errorf("body must be written after headers")
	}

	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := w.writer.WriteString(bodyTrailer); err != nil {
		return n, err
	}
	w.state = stateBodyWritten
	return n, nil
}

// Flush pushes buffered bytes to the underlying connection
func (w *Writer) Flush() error {
	return w.writer.Flush()
}

// Respond writes a complete response without a body
func (w *Writer) Respond(statusCode StatusCode) error {
	if err := w.WriteStatusLine(statusCode); err != nil {
		return err
	}
	if err := w.WriteHeaders(headers.NewHeaders()); err != nil {
		return err
	}
	return w.Flush()
}

// RespondWithBody writes a complete response carrying body
func (w *Writer) RespondWithBody(statusCode StatusCode, contentType string, body []byte) error {
	if err := w.WriteStatusLine(statusCode); err != nil {
		return err
	}
	if err := w.WriteHeaders(GetDefaultHeaders(contentType, len(body))); err != nil {
		return err
	}
	if _, err := w.WriteBody(body); err != nil {
		return err
	}
	return w.Flush()
}
