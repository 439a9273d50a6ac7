// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/toeirei/joinguard/internal/accounts"
	"github.com/toeirei/joinguard/internal/i18n"
	"github.com/toeirei/joinguard/internal/model"
	"golang.org/x/term"
)

const (
	colorSubtle    = lipgloss.Color("240") // Muted gray
	colorHighlight = lipgloss.Color("81")  // Teal
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(colorSubtle)
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and manage registered accounts",
		Long: `Lists registered players and lets an operator revoke trusted addresses
or remove accounts. Registration itself only happens through the bot.`,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Short:   "List all accounts",
		Args:    cobra.NoArgs,
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			list := store.Snapshot().Accounts()
			if len(list) == 0 {
				fmt.Fprintln(out, i18n.T("cli.accounts.none"))
				return nil
			}
			renderAccounts(out, list, isTerminal(out))
			return nil
		},
	}

	revokeCmd := &cobra.Command{
		Use:   "revoke <username>",
		Short: "Forget all trusted addresses of an account",
		Long: `Clears the trusted addresses of an account. The next join from any address
has to be confirmed over Telegram again. Same as /closesessions in the bot.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, ok := store.FindByUsername(args[0])
			if !ok {
				return fmt.Errorf("%s: %w", args[0], accounts.ErrNotRegistered)
			}
			if err := store.ClearAddresses(cmd.Context(), acc.ExternalID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.accounts.revoked", acc.Username))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete <username>",
		Short:   "Remove an account",
		Long:    `Removes an account. The player and the chat identity can register again afterwards.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: setupDefaultServices,
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, ok := store.FindByUsername(args[0])
			if !ok {
				return fmt.Errorf("%s: %w", args[0], accounts.ErrNotRegistered)
			}
			if err := store.DeleteAccount(cmd.Context(), acc.Username); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.accounts.deleted", acc.Username))
			return nil
		},
	}

	cmd.AddCommand(listCmd, revokeCmd, deleteCmd)
	return cmd
}

// renderAccounts writes list as a bordered table when styled is set and as
// tab-separated columns otherwise.
func renderAccounts(w io.Writer, list []model.Account, styled bool) {
	headers := []string{
		i18n.T("cli.accounts.header.username"),
		i18n.T("cli.accounts.header.identity"),
		i18n.T("cli.accounts.header.addresses"),
	}
	rows := make([][]string, 0, len(list))
	for _, acc := range list {
		addrs := i18n.T("bot.status.addresses_none")
		if len(acc.TrustedAddresses) > 0 {
			addrs = strings.Join(acc.TrustedAddresses, ", ")
		}
		rows = append(rows, []string{acc.Username, acc.ExternalID, addrs})
	}

	if !styled {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(headers, "\t")))
		for _, r := range rows {
			fmt.Fprintln(tw, strings.Join(r, "\t"))
		}
		_ = tw.Flush()
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
