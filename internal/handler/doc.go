// Package handler provides the built-in request router and the in-memory
// store the server binary runs with.
package handler
