// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package confirm

import (
	"context"
	"time"
)

// Option is one reply button of a prompt.
type Option struct {
	Label   string
	Payload string
}

// Channel delivers messages to an external identity on the approval channel.
type Channel interface {
	SendText(ctx context.Context, destinationID, text string) error
	SendPrompt(ctx context.Context, destinationID, text string, options []Option) error
}

// Clock provides an abstraction over time.Now for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
