// Package device owns the power-supply command protocol.
//
// Ownership boundary:
// - ASCII reply parsing and command line formatting
// - the single serialized TCP command channel
// - the configured generic register table
package device
