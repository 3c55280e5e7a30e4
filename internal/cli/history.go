package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(root *RootOptions) *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the version history of an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id is required")
			}

			core, cleanup, err := openCore(root)
			if err != nil {
				return err
			}
			defer cleanup()

			history, err := core.History(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printHistory(cmd.OutOrStdout(), root.Format, history)
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "entity id")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(root *RootOptions) *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an entity (history is retained, tags are removed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id is required")
			}

			core, cleanup, err := openCore(root)
			if err != nil {
				return err
			}
			defer cleanup()

			txID, err := core.Delete(cmd.Context(), id, root.actor())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted entity %d at transaction %d\n", id, txID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "entity id")

	return cmd
}

// NewVerifyCommand creates the verify command, which reconciles the derived
// hash registry against shadow history.
func NewVerifyCommand(root *RootOptions) *cobra.Command {
	var (
		id      int64
		rebuild bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check (or rebuild with --rebuild) the hash registry against history",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, cleanup, err := openCore(root)
			if err != nil {
				return err
			}
			defer cleanup()

			if rebuild {
				rep, err := core.Rebuild(cmd.Context())
				if err != nil {
					return err
				}
				return printReport(cmd.OutOrStdout(), root.Format, rep)
			}

			if id == 0 {
				return fmt.Errorf("--id is required unless --rebuild is set")
			}
			rep, err := core.Verify(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), root.Format, rep)
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "entity id to verify")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "repair missing hashes and drifted pointers for all entities")

	return cmd
}
