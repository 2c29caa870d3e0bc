package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Well-known message fields
const (
	FieldRequestType = "requestType"

	// RequestTypeServerClosing is sent to known peers when the server shuts down
	RequestTypeServerClosing = "serverClosing"
)

var (
	// ErrMalformedEnvelope is returned when the bytes are not a msgpack string
	// wrapping a JSON object.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrMissingField is returned when a decoded request lacks a string requestType.
	ErrMissingField = errors.New("missing field")
)

// Message is a decoded request or response document
type Message map[string]any

// RequestType returns the requestType field if present and a string
func (m Message) RequestType() (string, bool) {
	v, ok := m[FieldRequestType]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Encode serializes v to JSON text and wraps the text in a msgpack string object
func Encode(v any) ([]byte, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	data, err := msgpack.Marshal(string(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	return data, nil
}

// DecodeDocument unwraps the msgpack envelope and parses the inner JSON object.
// Numbers are kept as json.Number so they re-encode unchanged. Bytes left
// over after either layer make the payload malformed. It performs no field
// checks.
func DecodeDocument(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedEnvelope)
	}

	var doc string
	reader := bytes.NewReader(data)
	if err := msgpack.NewDecoder(reader).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: outer layer: %v", ErrMalformedEnvelope, err)
	}
	if reader.Len() > 0 {
		return nil, fmt.Errorf("%w: outer layer: %d trailing bytes", ErrMalformedEnvelope, reader.Len())
	}

	var msg Message
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: inner layer: %v", ErrMalformedEnvelope, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: inner layer: trailing data", ErrMalformedEnvelope)
	}
	// JSON null decodes into a nil map without error
	if msg == nil {
		return nil, fmt.Errorf("%w: inner layer: document is not an object", ErrMalformedEnvelope)
	}

	return msg, nil
}

// Decode parses a request envelope and checks that requestType is present
func Decode(data []byte) (Message, error) {
	msg, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}

	if _, ok := msg.RequestType(); !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, FieldRequestType)
	}

	return msg, nil
}
