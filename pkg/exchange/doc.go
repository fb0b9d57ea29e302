// Package exchange implements CoAP request/response correlation: the
// Exchange entity, the Store that indexes exchanges by message ID, token
// and observe URI, and the Matcher variants that drive registration and
// lookup from the protocol stage.
//
// An Exchange is created by a Matcher on first send (local origin) or on
// first receipt of a request (remote origin) and lives until it completes,
// is canceled, or is evicted after its token registration ages past the
// configured exchange lifetime. All mutation happens from the protocol
// stage; Exchange's own locking only protects against concurrent reads
// from other goroutines (connector callbacks, diagnostics).
package exchange
