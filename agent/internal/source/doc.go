// Package source reads the agent's data file.
//
// The file holds one reading as `key: value` lines. Each line is split at its
// first colon and both halves are trimmed, so values may themselves contain
// colons (times, URLs). Blank lines and lines without a colon are skipped; a
// repeated key replaces the earlier value in place. The `id` key is required.
//
// Watch reports changes to the file using fsnotify.
package source
