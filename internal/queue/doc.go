// Package queue provides the bounded FIFO used between the socket workers
// and the dispatcher. A full queue applies backpressure to its producer.
package queue
