// Package message implements the CoAP message model and wire codecs.
// This package handles the on-the-wire representation of CoAP messages as
// defined in RFC 7252 (UDP framing) and RFC 8323 (TCP/TLS framing).
//
// The package provides:
//   - Message, Request, Response and Empty types (version/type/code/MID/
//     token/options/payload)
//   - Option encoding/decoding with delta-encoded option numbers
//   - A Codec abstraction with one implementation per lower layer
package message
