// Package queue implements a persistent, segmented append-only message log.
//
// A single writer goroutine owns the active segment. Producers hand payloads
// to it through an Appender and receive the sequence numbers the writer
// assigned. Segments are plain files named after their base sequence, each
// with a sparse index sibling; a small MANIFEST records which segments exist,
// which are sealed and a checkpoint for the active one. Tailers read segments
// directly and never go through the writer.
//
// On disk every message is a frame:
//
//	[length u32 LE][payload][crc64 u64 LE]
//
// where the checksum covers the length bytes and the payload.
package queue
