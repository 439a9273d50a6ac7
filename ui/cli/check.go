// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/trust"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <username> <address>",
		Short: "Show how a join attempt would be judged",
		Long: `Evaluates a join attempt against the stored accounts and prints the verdict:
"unknown", "trusted" or "needs-confirmation". No prompt is sent and nothing
is changed.

Example:
  joinguard check Steve 203.0.113.7`,
		Args:    cobra.ExactArgs(2),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := trust.Evaluate(store, args[0], args[1])
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.check.result", args[0], args[1], d.Verdict))
			return nil
		},
	}
}
