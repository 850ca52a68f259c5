// Package bridge adapts device parameters to the external object-model
// layer.
//
// Ownership boundary:
// - one synchronous read/write method pair per device parameter
// - the DataSource extension point consumed by the object-model server
// - the outcome mapping to good / communication failure / no-data
package bridge
