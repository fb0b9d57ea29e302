// Package connectortest provides an in-memory connector.Connector pair for
// deterministic endpoint-to-endpoint tests that exercise the full
// Connector/Codec/Matcher/Stack path without opening real sockets. It
// mirrors the teacher's pkg/transport/pipe.go: a pion/transport/v3/test
// Bridge carries whole messages between two in-process peers, with
// optional network-condition simulation (drop/delay/duplicate).
package connectortest
