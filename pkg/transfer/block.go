// Package transfer implements the three transfer-driver state machines of
// spec §4.3 (client-send, client-receive, server-session): the DATA/ACK
// loop, retry budget, and duplicate/stranger handling that preserve TFTP's
// lock-step semantics.
package transfer

// nextBlock advances a block number with the classic 65535->0 wraparound
// convention (spec §9's resolved Open Question). uint16 overflow already
// does this; the helper exists so every call site documents the choice
// instead of relying on a silent wraparound.
func nextBlock(b uint16) uint16 {
	return b + 1
}

// isPriorBlock reports whether got is exactly one behind want, modulo 2^16,
// which is the signature of a peer re-sending its previous block (spec
// §4.3's tie-break rule). Using a signed 16-bit difference makes this
// correct regardless of whether the peer wraps 65535->0 or 65535->1: either
// way the "one behind" packet differs from the expected block by exactly
// -1 modulo 2^16.
func isPriorBlock(got, want uint16) bool {
	return int16(got-want) == -1
}
