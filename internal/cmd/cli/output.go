package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/rzbill/flolog/internal/queue"
)

// decodedMessage returns a map with sequence, timestamp and one of
// payload_json, payload_text, or payload_b64.
func decodedMessage(m queue.Message) map[string]any {
	out := map[string]any{
		"sequence":  m.Sequence,
		"timestamp": formatMicros(m.Timestamp),
	}
	p := m.Payload
	if len(p) > 0 && (p[0] == '{' || p[0] == '[') {
		var v any
		if json.Unmarshal(p, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(p) {
		out["payload_text"] = string(p)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(p)
	return out
}

func formatMicros(us uint64) string {
	if us == 0 {
		return ""
	}
	return time.UnixMicro(int64(us)).UTC().Format(time.RFC3339Nano)
}

func printMessage(w io.Writer, m queue.Message, asJSON bool) error {
	if asJSON {
		b, err := json.Marshal(decodedMessage(m))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	}
	payload := string(m.Payload)
	if !utf8.Valid(m.Payload) {
		payload = "b64:" + base64.StdEncoding.EncodeToString(m.Payload)
	}
	_, err := fmt.Fprintf(w, "%d\t%s\n", m.Sequence, payload)
	return err
}
