// Package endpoint assembles a Connector, Matcher, Store and protocol
// Stack into the CoAP Endpoint described by spec.md Section 4.1: a
// lifecycle state machine (Created -> Started -> Stopped -> Destroyed),
// an Inbox that reposts raw inbound frames onto the protocol-stage
// executor, an Outbox that registers, fans through interceptors and
// writes outbound messages, and the send_request/send_response/
// send_empty_message/cancel_observation operations with their specified
// threading semantics.
package endpoint
