package udpwire

import (
	"encoding/binary"
	"net"
)

// The response travels as the payload of an ordinary UDP datagram, but
// it is framed with hand-assembled IPv4 and UDP headers of its own.
// Clients skip FrameOverhead bytes to reach the response payload.
const (
	ipHeaderLen  = 20
	udpHeaderLen = 8

	// FrameOverhead is the combined length of the embedded headers.
	FrameOverhead = ipHeaderLen + udpHeaderLen

	ipVersionIHL = 0x45 // IPv4, 5 words, no options
	ipTTL        = 255
	protoUDP     = 17
)

// Endpoint is one side of the embedded frame addressing.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// BuildFrame assembles the embedded IPv4 header, UDP header and payload.
// Source is the responder's bound local address, destination the
// requester; ports mirror the request. Both header checksums are filled
// in: the IP checksum over the 20-byte header, the UDP checksum over the
// pseudo-header, UDP header and payload.
func BuildFrame(src, dst Endpoint, id uint16, payload []byte) []byte {
	total := FrameOverhead + len(payload)
	frame := make([]byte, total)

	// IPv4 header, network byte order throughout.
	frame[0] = ipVersionIHL
	frame[1] = 0 // TOS
	binary.BigEndian.PutUint16(frame[2:4], uint16(total))
	binary.BigEndian.PutUint16(frame[4:6], id)
	binary.BigEndian.PutUint16(frame[6:8], 0) // no fragmentation
	frame[8] = ipTTL
	frame[9] = protoUDP
	// checksum at [10:12] computed below
	copy(frame[12:16], ipv4(src.IP))
	copy(frame[16:20], ipv4(dst.IP))
	binary.BigEndian.PutUint16(frame[10:12], Checksum(frame[:ipHeaderLen]))

	// UDP header.
	udp := frame[ipHeaderLen:]
	binary.BigEndian.PutUint16(udp[0:2], src.Port)
	binary.BigEndian.PutUint16(udp[2:4], dst.Port)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpHeaderLen+len(payload)))
	// checksum at udp[6:8] computed over the pseudo-header below
	copy(udp[udpHeaderLen:], payload)

	sum := udpChecksum(src.IP, dst.IP, udp)
	if sum == 0 {
		sum = 0xFFFF // transmitted zero means "no checksum"
	}
	binary.BigEndian.PutUint16(udp[6:8], sum)

	return frame
}

// Checksum is the standard one's-complement 16-bit folding sum over b.
// An odd trailing byte is padded with zero.
func Checksum(b []byte) uint16 {
	var sum uint32
	for len(b) >= 2 {
		sum += uint32(binary.BigEndian.Uint16(b[:2]))
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// VerifyIPChecksum reports whether the embedded IP header checksum
// validates: folding the full header must yield zero.
func VerifyIPChecksum(frame []byte) bool {
	if len(frame) < ipHeaderLen {
		return false
	}
	return onesComplementSum(frame[:ipHeaderLen]) == 0xFFFF
}

// VerifyUDPChecksum reports whether the embedded UDP checksum validates
// against the pseudo-header.
func VerifyUDPChecksum(frame []byte) bool {
	if len(frame) < FrameOverhead {
		return false
	}
	src := net.IP(frame[12:16])
	dst := net.IP(frame[16:20])
	udp := frame[ipHeaderLen:]
	pseudo := pseudoHeader(src, dst, udp)
	return onesComplementSum(pseudo) == 0xFFFF
}

func udpChecksum(src, dst net.IP, udp []byte) uint16 {
	return Checksum(pseudoHeader(src, dst, udp))
}

// pseudoHeader prepends the IPv4 pseudo-header used for UDP checksums:
// source, destination, zero, protocol, UDP length.
func pseudoHeader(src, dst net.IP, udp []byte) []byte {
	buf := make([]byte, 12+len(udp))
	copy(buf[0:4], ipv4(src))
	copy(buf[4:8], ipv4(dst))
	buf[8] = 0
	buf[9] = protoUDP
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(udp)))
	copy(buf[12:], udp)
	return buf
}

func onesComplementSum(b []byte) uint32 {
	var sum uint32
	for len(b) >= 2 {
		sum += uint32(binary.BigEndian.Uint16(b[:2]))
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return sum
}

// ipv4 normalizes an address to 4-byte form; an unknown or IPv6-only
// address maps to 0.0.0.0 like an unspecified bind address does.
func ipv4(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return net.IPv4zero.To4()
}
