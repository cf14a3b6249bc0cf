package protocol

import (
	"errors"

	"github.com/tidwall/gjson"
)

// NoMessageText is the error text returned to POST clients whose body
// carries no message.
const NoMessageText = "No message provided"

// ErrNoMessage is returned when a send request has no usable message.
var ErrNoMessage = errors.New("no message provided")

// ParseSendRequest extracts the message of a {"message": ...} body.
// A string message is returned unquoted; any other JSON value is returned
// as its raw JSON text. Invalid JSON, a non-object body, and a missing or
// null message all yield ErrNoMessage.
func ParseSendRequest(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrNoMessage
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, ErrNoMessage
	}

	msg := root.Get("message")
	switch {
	case !msg.Exists(), msg.Type == gjson.Null:
		return nil, ErrNoMessage
	case msg.Type == gjson.String:
		return []byte(msg.String()), nil
	default:
		return []byte(msg.Raw), nil
	}
}
