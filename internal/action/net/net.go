// Package net provides the builtin network actions.
package net

import (
	"net/http"

	"github.com/tombee/stepflow/pkg/workflow"
)

const category = "net"

// HTTPID is the module id of the HTTP request action.
const HTTPID = "stepflow.net.http"

// DefaultMaxResponseSize bounds how much of a response body is read.
const DefaultMaxResponseSize = 10 << 20

// Options configures the network actions.
type Options struct {
	// Client performs requests; nil uses http.DefaultClient
	Client *http.Client

	// MaxResponseSize bounds response bodies; zero uses DefaultMaxResponseSize
	MaxResponseSize int64
}

// Actions returns the network actions.
func Actions(opts Options) []workflow.Action {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = DefaultMaxResponseSize
	}
	return []workflow.Action{newHTTP(opts)}
}
