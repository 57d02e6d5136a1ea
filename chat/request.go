package chat

import "strings"

// Headers maps header names to values. Names are case-insensitive and
// stored lowercase; use Set and Get rather than indexing directly.
type Headers map[string]string

// Set stores a header value under the canonical (lowercase) name.
func (h Headers) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// Get returns the value for a header name, or "" when absent.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Clone returns a copy of the headers. A nil receiver clones to nil.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Request is one HTTP-shaped request sent over a connection.
type Request struct {
	Method  string
	Path    string
	Headers Headers
	Body    []byte
}

// NewRequest builds a request with an empty header set.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Headers: make(Headers)}
}

// Response is the remote's answer to one request.
type Response struct {
	Status  int
	Message string
	Headers Headers
	Body    []byte
}
