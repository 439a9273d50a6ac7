// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the command-line interface for Joinguard using Cobra.
// It wires configuration, the account store and the long-running services.
// Commands stay thin and delegate to the internal packages.
package cli
