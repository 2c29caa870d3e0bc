// Package protocol implements the datagram envelope codec.
// A package on the wire is a msgpack string object whose content is a JSON
// document; requests must carry a string requestType field.
package protocol
