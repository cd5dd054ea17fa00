// Package messages implements the concrete leaf message bodies this
// component registers with the message registry (component C2):
// service-connection and event protocol messages, discovery inform/query
// pairs, and the sensor report/query pairs used as test fixtures.
package messages

import (
	"fmt"

	"jauscore/component/internal/wire"
)

// Command codes. The JAUS reference architecture partitions codes into
// command (0x0000-0x1FFF), query (0x2000-0x3FFF) and inform (0x4000-0x5FFF)
// ranges, with each message family occupying a parallel offset in each
// range; the specific offsets below follow that partitioning but are this
// component's own assignment, since the retrieved reference sources do not
// include the C++ library's full numeric command-code table.
const (
	CodeCreateServiceConnection    uint16 = 0x0008
	CodeConfirmServiceConnection   uint16 = 0x0009
	CodeActivateServiceConnection  uint16 = 0x000A
	CodeSuspendServiceConnection   uint16 = 0x000B
	CodeTerminateServiceConnection uint16 = 0x000C

	CodeCreateEventRequest uint16 = 0x01F0
	CodeUpdateEvent        uint16 = 0x01F1
	CodeCancelEvent        uint16 = 0x01F2
	CodeConfirmEventRequest uint16 = 0x01F3
	CodeRejectEventRequest uint16 = 0x01F4
	CodeEvent              uint16 = 0x01F5

	CodeQueryIdentification  uint16 = 0x2001
	CodeReportIdentification uint16 = 0x4001
	CodeQueryConfiguration   uint16 = 0x2002
	CodeReportConfiguration  uint16 = 0x4002
	CodeQuerySubsystemList   uint16 = 0x2003
	CodeReportSubsystemList  uint16 = 0x4003
	CodeQueryServices        uint16 = 0x2004
	CodeReportServices       uint16 = 0x4004
	CodeReportHeartbeatPulse uint16 = 0x4008

	CodeQueryGlobalPose    uint16 = 0x2401
	CodeReportGlobalPose   uint16 = 0x4401
	CodeQueryVelocityState uint16 = 0x2404
	CodeReportVelocityState uint16 = 0x4404
	CodeQueryRangeScan     uint16 = 0x2420
	CodeReportRangeScan    uint16 = 0x4420
)

// ErrShortBody is returned by Decode implementations when fewer bytes are
// present than the fixed layout requires.
var ErrShortBody = fmt.Errorf("messages: message body shorter than its fixed layout")

func putU16(buf []byte, v uint16) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
}

func getU16(buf []byte) uint16 {
	return uint16(buf[0]) | uint16(buf[1])<<8
}

func putU32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func getU32(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

// putString writes a JAUS-style variable length string: a 2-byte length
// prefix followed by the raw bytes.
func putString(s string) []byte {
	b := make([]byte, 2+len(s))
	putU16(b, uint16(len(s)))
	copy(b[2:], s)
	return b
}

// readString reads a length-prefixed string starting at buf[0], returning
// the string and the number of bytes consumed.
func readString(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, ErrShortBody
	}
	n := int(getU16(buf))
	if len(buf) < 2+n {
		return "", 0, ErrShortBody
	}
	return string(buf[2 : 2+n]), 2 + n, nil
}

func putAddress(a wire.Address) []byte {
	return []byte{a.Subsystem, a.Node, a.Component, a.Instance}
}

func getAddress(buf []byte) wire.Address {
	return wire.NewAddress(buf[0], buf[1], buf[2], buf[3])
}
