// Package wire implements the JAUS binary wire protocol: addresses, the
// fixed 16-byte message header, and the scaled-integer codec used by message
// payloads.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Broadcast is the wildcard byte value: any address byte equal to Broadcast
// matches any value in the corresponding position of a peer address.
const Broadcast byte = 255

// Address identifies a JAUS component as (subsystem, node, component, instance).
// None of the four bytes may be zero; a byte value of 255 denotes a wildcard.
type Address struct {
	Subsystem byte
	Node      byte
	Component byte
	Instance  byte
}

// NewAddress constructs an Address from its four bytes.
func NewAddress(subsystem, node, component, instance byte) Address {
	return Address{Subsystem: subsystem, Node: node, Component: component, Instance: instance}
}

// IsValid reports whether none of the address bytes are zero.
func (a Address) IsValid() bool {
	return a.Subsystem != 0 && a.Node != 0 && a.Component != 0 && a.Instance != 0
}

// IsBroadcast reports whether every byte of the address is the wildcard value.
func (a Address) IsBroadcast() bool {
	return a.Subsystem == Broadcast && a.Node == Broadcast && a.Component == Broadcast && a.Instance == Broadcast
}

// HasWildcard reports whether any byte of the address is the wildcard value.
func (a Address) HasWildcard() bool {
	return a.Subsystem == Broadcast || a.Node == Broadcast || a.Component == Broadcast || a.Instance == Broadcast
}

// Matches reports whether the destination address a matches peer, where each
// byte of a is either exactly equal to the corresponding byte of peer, or is
// the wildcard value.
func (a Address) Matches(peer Address) bool {
	return matchByte(a.Subsystem, peer.Subsystem) &&
		matchByte(a.Node, peer.Node) &&
		matchByte(a.Component, peer.Component) &&
		matchByte(a.Instance, peer.Instance)
}

func matchByte(want, have byte) bool {
	return want == Broadcast || want == have
}

// AsUint32 packs the address as a big-endian 32-bit integer for ordering and
// map-key purposes: subsystem is the most significant byte, instance the
// least.
func (a Address) AsUint32() uint32 {
	return uint32(a.Subsystem)<<24 | uint32(a.Node)<<16 | uint32(a.Component)<<8 | uint32(a.Instance)
}

// Less orders addresses by their concatenation as a 32-bit integer.
func (a Address) Less(other Address) bool {
	return a.AsUint32() < other.AsUint32()
}

// Compare returns -1, 0 or 1 comparing a to other by their 32-bit integer form.
func (a Address) Compare(other Address) int {
	av, ov := a.AsUint32(), other.AsUint32()
	switch {
	case av < ov:
		return -1
	case av > ov:
		return 1
	default:
		return 0
	}
}

func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a.Subsystem, a.Node, a.Component, a.Instance)
}

// ParseAddress parses the "subsystem.node.component.instance" form produced
// by String back into an Address, for reading a component's own address out
// of configuration.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return Address{}, fmt.Errorf("wire: address %q must have 4 dot-separated fields", s)
	}
	var bytes [4]byte
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return Address{}, fmt.Errorf("wire: invalid address field %q: %w", part, err)
		}
		bytes[i] = byte(v)
	}
	return Address{Subsystem: bytes[0], Node: bytes[1], Component: bytes[2], Instance: bytes[3]}, nil
}
