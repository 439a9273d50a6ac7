// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package confirm

import (
	"errors"
	"strings"
	"unicode"
)

// ErrMalformedPayload is returned for button payloads that do not follow the
// "<verb>: <address>" format.
var ErrMalformedPayload = errors.New("malformed reply payload")

// Verb is the user's answer to a prompt.
type Verb int

const (
	// Approve trusts the address from now on.
	Approve Verb = iota + 1
	// Deny leaves the address untrusted.
	Deny
)

func (v Verb) String() string {
	switch v {
	case Approve:
		return "approve"
	case Deny:
		return "deny"
	default:
		return "invalid"
	}
}

// wire returns the payload prefix for v. The prefixes are kept compatible
// with prompts already sitting in users' chats.
func (v Verb) wire() string {
	switch v {
	case Approve:
		return "confirm:"
	case Deny:
		return "deny:"
	default:
		return ""
	}
}

// Payload encodes a reply button payload.
func Payload(v Verb, address string) string {
	return v.wire() + " " + address
}

// ParsePayload decodes a reply button payload. The verb and the address are
// separated by the first run of whitespace.
func ParsePayload(data string) (Verb, string, error) {
	data = strings.TrimSpace(data)
	i := strings.IndexFunc(data, unicode.IsSpace)
	if i < 0 {
		return 0, "", ErrMalformedPayload
	}
	head := data[:i]
	address := strings.TrimLeftFunc(data[i:], unicode.IsSpace)
	if address == "" {
		return 0, "", ErrMalformedPayload
	}

	switch head {
	case Approve.wire():
		return Approve, address, nil
	case Deny.wire():
		return Deny, address, nil
	default:
		return 0, "", ErrMalformedPayload
	}
}
