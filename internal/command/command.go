// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package command parses and executes the text commands users send to the bot.
package command

import (
	"strings"
	"unicode"
)

// Command is one of the commands the bot understands.
type Command interface {
	isCommand()
}

type (
	// Start greets the user.
	Start struct{}
	// Help lists the commands.
	Help struct{}
	// Register binds Username to the sender.
	Register struct{ Username string }
	// Status shows the sender's account.
	Status struct{}
	// ChangeUsername renames the sender's account.
	ChangeUsername struct{ Username string }
	// CloseSessions clears the sender's trusted addresses.
	CloseSessions struct{}
	// Unknown is anything else.
	Unknown struct{ Verb string }
)

func (Start) isCommand()          {}
func (Help) isCommand()           {}
func (Register) isCommand()       {}
func (Status) isCommand()         {}
func (ChangeUsername) isCommand() {}
func (CloseSessions) isCommand()  {}
func (Unknown) isCommand()        {}

// Parse turns a message into a Command. The verb is everything up to the
// first whitespace run and is matched case-insensitively; a trailing
// "@botname" on the verb is ignored. The rest, trimmed, is the argument.
func Parse(text string) Command {
	verb, arg := Split(text)
	return FromParts(verb, arg)
}

// Split separates the verb from the argument.
func Split(text string) (verb, arg string) {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// FromParts builds a Command from an already split verb and argument.
func FromParts(verb, arg string) Command {
	name := strings.ToLower(verb)
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	arg = strings.TrimSpace(arg)

	switch name {
	case "/start":
		return Start{}
	case "/help":
		return Help{}
	case "/register":
		return Register{Username: arg}
	case "/status":
		return Status{}
	case "/changeusername":
		return ChangeUsername{Username: arg}
	case "/closesessions":
		return CloseSessions{}
	default:
		return Unknown{Verb: verb}
	}
}
