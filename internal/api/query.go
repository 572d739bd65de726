package api

import (
	"net/url"
	"strings"
)

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// Query is an ordered list of query parameters. Unlike url.Values it keeps
// insertion order, so the rule catalog controls the query string layout.
type Query []Param

// Add appends a parameter.
func (q Query) Add(key, value string) Query {
	return append(q, Param{Key: key, Value: value})
}

// Get returns the first value for key.
func (q Query) Get(key string) string {
	for _, p := range q {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Encode renders the query in insertion order.
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}
