// Package snapshot persists the aggregator's readings to a single JSON file
// so the store survives a restart.
//
// File.Save / File.SaveFrom write the complete set of readings to a temporary
// file in the target's directory, fsync it, and rename it over the target.
// Saves are serialised on one mutex, so the file always holds exactly one
// complete save. SaveFrom takes the store snapshot inside that critical
// section: whichever save completes last wrote the newest state.
//
// File.Load returns an empty slice for a missing or blank file and wraps
// ErrCorrupt for anything that is not a JSON array of objects. Elements
// without an identity attribute are skipped with a warning.
package snapshot
