// Package netspec parses host and port specifications into concrete scan sets.
package netspec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Parse failures. Each one is fatal to the whole scan and is surfaced before
// any network activity begins.
var (
	ErrMissingAddress    = errors.New("missing address")
	ErrBadIPAddress      = errors.New("bad IP address")
	ErrBadNetmask        = errors.New("bad netmask")
	ErrInvalidPortNumber = errors.New("invalid port number")
)

// HostRange is an inclusive span of IPv4 addresses derived from an address or
// CIDR specification. It is immutable once constructed and safe to share
// across goroutines.
type HostRange struct {
	start uint32
	end   uint32
}

// ParseHostSpec parses "a.b.c.d" or "a.b.c.d/len" into a HostRange. A bare
// address is treated as /len 32. The range covers the whole block, network
// and broadcast addresses included.
func ParseHostSpec(spec string) (HostRange, error) {
	if spec == "" {
		return HostRange{}, ErrMissingAddress
	}

	addrPart, maskPart, hasMask := strings.Cut(spec, "/")

	addr, err := netip.ParseAddr(addrPart)
	if err != nil || !addr.Is4() {
		return HostRange{}, fmt.Errorf("%w: %q", ErrBadIPAddress, addrPart)
	}

	prefix := 32
	if hasMask {
		prefix, err = strconv.Atoi(maskPart)
		if err != nil || prefix < 0 || prefix > 32 {
			return HostRange{}, fmt.Errorf("%w: %q", ErrBadNetmask, maskPart)
		}
	}

	base := addrToUint32(addr)
	if prefix == 32 {
		// The input address itself, unmasked.
		return HostRange{start: base, end: base}, nil
	}

	hostBits := uint32(1)<<(32-prefix) - 1
	start := base & ^hostBits
	return HostRange{start: start, end: start | hostBits}, nil
}

// Count returns the number of addresses in the range (up to 2^32).
func (r HostRange) Count() uint64 {
	return uint64(r.end) - uint64(r.start) + 1
}

// Addrs returns a fresh iterator over the range in ascending order.
// Iterators are independent; expanding the same range twice restarts
// from the first address.
func (r HostRange) Addrs() *AddrIter {
	return &AddrIter{next: uint64(r.start), last: uint64(r.end)}
}

// AddrIter walks a HostRange one address at a time. It holds no backing
// storage, so iterating a /0 costs the same as a /32.
type AddrIter struct {
	next uint64
	last uint64
}

// Next returns the next address and true, or the zero Addr and false once
// the range is exhausted.
func (it *AddrIter) Next() (netip.Addr, bool) {
	if it.next > it.last {
		return netip.Addr{}, false
	}
	addr := uint32ToAddr(uint32(it.next))
	it.next++
	return addr, true
}

func addrToUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uint32ToAddr(n uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return netip.AddrFrom4(b)
}
