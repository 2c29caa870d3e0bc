// Package server implements the UDP request server and its HTTP monitoring API.
// A receive worker feeds an inbound queue, a dispatcher runs the request
// handler and fills an outbound queue, and a send worker writes responses
// back to the originating peers.
package server
