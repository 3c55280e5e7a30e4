package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vcatdb/vcat/internal/version"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	ID   int64
	At   int64
	Ref  string
	Hash string
	Tag  string
}

// NewShowCommand creates the show command: live state, time-travel by
// transaction id, or resolution by hash/tag/index reference.
func NewShowCommand(root *RootOptions) *cobra.Command {
	opts := &ShowOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an entity state (live, historical, or pinned)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, root, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.ID, "id", 0, "entity id")
	cmd.Flags().Int64Var(&opts.At, "at", 0, "reconstruct state as of this transaction id")
	cmd.Flags().StringVar(&opts.Ref, "ref", "", "version reference for --id: digest, tag, or ~index")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "resolve a content digest directly")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "resolve a tag name directly")

	return cmd
}

func runShow(cmd *cobra.Command, root *RootOptions, opts *ShowOptions) error {
	core, cleanup, err := openCore(root)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	var state version.State
	switch {
	case opts.Hash != "":
		state, err = core.ReadByHash(ctx, opts.Hash)
	case opts.Tag != "":
		state, err = core.ReadByTag(ctx, opts.Tag)
	case opts.ID != 0 && opts.Ref != "":
		state, err = core.ResolveRef(ctx, opts.ID, opts.Ref)
	case opts.ID != 0 && opts.At != 0:
		state, err = core.ReadAt(ctx, opts.ID, opts.At)
	case opts.ID != 0:
		state, err = core.Read(ctx, opts.ID)
	default:
		return fmt.Errorf("one of --id, --hash, or --tag is required")
	}
	if err != nil {
		return err
	}

	return printState(cmd.OutOrStdout(), root.Format, state)
}
