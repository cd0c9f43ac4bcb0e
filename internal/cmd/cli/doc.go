// Package cli provides the `flolog` command-line tool.
//
// Every command works directly on a data directory; there is no server.
// Configuration is layered: built-in defaults, then --config (JSON or
// YAML), then FLOLOG_* environment variables, then flags.
//
// Usage
//
//	flolog append --data-dir ./data hello world
//	cat events.ndjson | flolog append --batch 256
//
//	flolog tail --from earliest --limit 10
//	flolog tail --at 2026-09-20T12:00:00Z --json
//	flolog tail --group billing --follow          # resumes after the committed cursor
//	flolog tail --filter 'json.level == "error"'
//
//	flolog inspect
//	flolog verify
//	flolog cursors list
//	flolog cursors delete billing
//
// Notes
//
//   - tail in replay mode stops at the last message committed when it
//     started; --follow keeps waiting for new appends until interrupted.
//   - With --group, each printed message is committed as the group's cursor.
//   - Corrupted frames are logged and skipped.
package cli
