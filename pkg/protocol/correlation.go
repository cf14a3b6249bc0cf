package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultCorrelationField is the field stamped into stdio requests.
const DefaultCorrelationField = "_t_recv"

// ErrNotObject is returned when a line is not a JSON object.
var ErrNotObject = errors.New("not a JSON object")

// IsObject reports whether data is a single valid JSON object.
func IsObject(data []byte) bool {
	return gjson.ValidBytes(data) && gjson.ParseBytes(data).IsObject()
}

// StampCorrelation sets field on the JSON object obj to t as Unix seconds
// with sub-second precision. Other fields are left byte-for-byte intact.
func StampCorrelation(obj []byte, field string, t time.Time) ([]byte, error) {
	if !IsObject(obj) {
		return nil, ErrNotObject
	}

	out, err := sjson.SetBytes(obj, escapePath(field), UnixSeconds(t))
	if err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", field, err)
	}
	return out, nil
}

// UnixSeconds converts t to fractional Unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnixSeconds converts fractional Unix seconds back to a time.
func FromUnixSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}

// RequestID returns the raw JSON text of the top-level id of obj.
func RequestID(obj []byte) (string, bool) {
	id := gjson.GetBytes(obj, "id")
	if !id.Exists() || id.Type == gjson.Null {
		return "", false
	}
	return id.Raw, true
}

// Reply is what the stdio sink learns from a relayed payload.
type Reply struct {
	// ID is the raw JSON text of the id field.
	ID string
	// Stamp is the echoed correlation timestamp, zero when absent.
	Stamp time.Time
}

// InspectReply reports whether payload is a JSON object carrying both id
// and result, and extracts the id and any echoed correlation field.
// payload is never modified.
func InspectReply(payload []byte, field string) (Reply, bool) {
	if !IsObject(payload) {
		return Reply{}, false
	}

	res := gjson.GetManyBytes(payload, "id", "result", escapePath(field))
	if !res[0].Exists() || !res[1].Exists() {
		return Reply{}, false
	}

	reply := Reply{ID: res[0].Raw}
	if res[2].Type == gjson.Number && res[2].Float() > 0 {
		reply.Stamp = FromUnixSeconds(res[2].Float())
	}
	return reply, true
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	".", `\.`,
	"*", `\*`,
	"?", `\?`,
	"|", `\|`,
	"#", `\#`,
	"@", `\@`,
	":", `\:`,
)

// escapePath turns a literal field name into a gjson/sjson path.
func escapePath(field string) string {
	return pathEscaper.Replace(field)
}

// EchoCorrelation copies field from src into the JSON object dst when src
// carries it. dst is returned unchanged otherwise.
func EchoCorrelation(dst, src []byte, field string) ([]byte, error) {
	path := escapePath(field)
	v := gjson.GetBytes(src, path)
	if !v.Exists() {
		return dst, nil
	}
	out, err := sjson.SetRawBytes(dst, path, []byte(v.Raw))
	if err != nil {
		return nil, fmt.Errorf("failed to echo %s: %w", field, err)
	}
	return out, nil
}
