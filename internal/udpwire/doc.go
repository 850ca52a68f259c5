// Package udpwire owns the binary control protocol wire contract.
//
// Ownership boundary:
// - control/response packet encode and decode
// - micro-unit conversion between wire integers and native doubles
// - hand-assembled IPv4+UDP framing of the response, with checksums
//
// Pure bytes in, bytes out; no sockets.
package udpwire
