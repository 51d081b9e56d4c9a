// Package plist provides typed access over Apple XML property lists used
// as the wire envelope for GrandSlam requests/responses and for the
// on-disk anisette state file.
package plist

import (
	"bytes"
	"fmt"

	"howett.net/plist"
)

// Dict is a typed wrapper around a decoded plist dictionary, giving callers
// panic-free typed accessors instead of repeated type assertions.
type Dict map[string]any

// Decode parses XML (or binary) plist bytes into a Dict. The root value must
// be a dictionary; anything else is a Parse error.
func Decode(data []byte) (Dict, error) {
	var raw any
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("plist: decode: %w", err)
	}
	d, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("plist: decode: root value is not a dictionary")
	}
	return Dict(d), nil
}

// Encode renders v (typically a Dict or map[string]any) as XML plist bytes.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := plist.NewEncoder(&buf)
	enc.Indent("\t")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("plist: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Dict returns the value at key as a Dict.
func (d Dict) Dict(key string) (Dict, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		return Dict(t), true
	case Dict:
		return t, true
	default:
		return nil, false
	}
}

// String returns the value at key as a string.
func (d Dict) String(key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}

// Data returns the value at key as raw bytes (plist <data>).
func (d Dict) Data(key string) ([]byte, bool) {
	v, ok := d[key].([]byte)
	return v, ok
}

// Int returns the value at key as an int64 (plist <integer>).
func (d Dict) Int(key string) (int64, bool) {
	switch v := d[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Bool returns the value at key as a bool.
func (d Dict) Bool(key string) (bool, bool) {
	v, ok := d[key].(bool)
	return v, ok
}

// GSAStatus is the common `{ ec, em, au }` status block nested inside every
// GSA response.
type GSAStatus struct {
	EC int64
	EM string
	AU string
}

// GSAResponse validates and unwraps the `{ Response: { Status: {...}, ... } }`
// envelope Apple's GsService2 endpoint always returns.
func GSAResponse(body []byte) (Dict, GSAStatus, error) {
	root, err := Decode(body)
	if err != nil {
		return nil, GSAStatus{}, err
	}
	resp, ok := root.Dict("Response")
	if !ok {
		return nil, GSAStatus{}, fmt.Errorf("plist: malformed GSA envelope: missing Response")
	}
	statusDict, ok := resp.Dict("Status")
	if !ok {
		return nil, GSAStatus{}, fmt.Errorf("plist: malformed GSA envelope: missing Response.Status")
	}
	ec, _ := statusDict.Int("ec")
	em, _ := statusDict.String("em")
	au, _ := statusDict.String("au")
	return resp, GSAStatus{EC: ec, EM: em, AU: au}, nil
}
