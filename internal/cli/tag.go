package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTagCommand creates the tag command.
func NewTagCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <digest> <name>",
		Short: "Bind a tag name to a version hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, cleanup, err := openCore(root)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := core.Tag(cmd.Context(), args[0], args[1], root.actor()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "tagged %s as %q\n", args[0], args[1])
			return nil
		},
	}
}

// NewRetagCommand creates the retag command, which explicitly moves an
// existing tag name to a different version hash.
func NewRetagCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retag <name> <digest>",
		Short: "Move an existing tag to a different version hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, cleanup, err := openCore(root)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := core.Retag(cmd.Context(), args[0], args[1], root.actor()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "retagged %q to %s\n", args[0], args[1])
			return nil
		},
	}
}

// NewTagsCommand creates the tags command, listing tags bound to a digest.
func NewTagsCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tags <digest>",
		Short: "List tags bound to a version hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, cleanup, err := openCore(root)
			if err != nil {
				return err
			}
			defer cleanup()

			names, err := core.TagsFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printTags(cmd.OutOrStdout(), root.Format, names)
		},
	}
}
