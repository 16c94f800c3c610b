// Package storage is the append-only audit and run log.
//
// It records operator toggles and finished contract calls. Nothing is ever
// read back into scheduling: task flags always start from configuration.
package storage
