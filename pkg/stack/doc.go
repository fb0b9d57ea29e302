// Package stack implements the layered protocol stack described in
// spec.md Section 4.2: an ordered pipeline of Observe, Blockwise and
// Reliability layers between the Endpoint's deliverer and its Outbox.
// Traversal is bidirectional (top to bottom on send, bottom to top on
// receive), and every layer exposes the same six symmetric hooks. A Stack
// is built once at endpoint construction and then called concurrently
// from the protocol stage; layers keep their per-exchange bookkeeping on
// the Exchange itself (ReliabilityState, BlockwiseState, ObserveState),
// so an Exchange's lifetime governs its cleanup. The one layer-local map
// is ObserveLayer's token index, whose entry is removed when the
// observing Exchange completes or the observation is canceled.
package stack
