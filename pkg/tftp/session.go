package tftp

import "net"

// Direction distinguishes a read transfer (server sends / client receives)
// from a write transfer (server receives / client sends).
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
)

func (d Direction) String() string {
	if d == DirectionWrite {
		return "write"
	}

	return "read"
}

// TransferInfo is the observable snapshot emitted via progress/transfer
// callbacks (spec §3). Two TransferInfos are Equal iff (PeerAddr, Filename)
// match, which doubles as the hash key for fleet-level session tracking
// the original C++ header implements via TransferInfo::Hash.
type TransferInfo struct {
	Direction   Direction
	PeerAddr    net.Addr
	Filename    string
	Transferred int64
	TotalSize   int64
}

// Equal implements the (PeerAddr, Filename) comparison spec §3 requires.
func (t TransferInfo) Equal(other TransferInfo) bool {
	if t.Filename != other.Filename {
		return false
	}

	if t.PeerAddr == nil || other.PeerAddr == nil {
		return t.PeerAddr == other.PeerAddr
	}

	return t.PeerAddr.String() == other.PeerAddr.String()
}

// Key returns a string suitable for use as a map key uniquely identifying
// this transfer by (PeerAddr, Filename).
func (t TransferInfo) Key() string {
	addr := "<nil>"
	if t.PeerAddr != nil {
		addr = t.PeerAddr.String()
	}

	return addr + "|" + t.Filename
}
