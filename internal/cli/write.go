package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vcatdb/vcat/internal/attr"
	"github.com/vcatdb/vcat/internal/version"
)

// WriteOptions holds flags for the write command.
type WriteOptions struct {
	ID      int64
	Name    string
	Type    string
	Attrs   string
	File    string
	TagName string
}

// NewWriteCommand creates the write command: the single mutation entry
// point. Without --id it creates an entity; with --id it updates one.
func NewWriteCommand(root *RootOptions) *cobra.Command {
	opts := &WriteOptions{}

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Create or update a versioned entity",
		Long: `Write a new state for an entity. Attributes are given as a JSON object,
inline via --attrs or from a file via --file. On success the committed
transaction id and version hash are printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, root, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.ID, "id", 0, "entity id to update (omit to create)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "entity name (create only)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "entity type (create only)")
	cmd.Flags().StringVar(&opts.Attrs, "attrs", "", "attributes as a JSON object")
	cmd.Flags().StringVar(&opts.File, "file", "", "path to a JSON file with attributes")
	cmd.Flags().StringVar(&opts.TagName, "tag", "", "bind this tag to the resulting version")

	return cmd
}

func runWrite(cmd *cobra.Command, root *RootOptions, opts *WriteOptions) error {
	snap, err := loadAttrs(opts)
	if err != nil {
		return err
	}

	core, cleanup, err := openCore(root)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := core.Write(cmd.Context(), version.WriteRequest{
		EntityID:   opts.ID,
		EntityName: opts.Name,
		EntityType: opts.Type,
		Actor:      root.actor(),
		Attributes: snap,
	})
	if err != nil {
		return err
	}

	if opts.TagName != "" {
		if err := core.Tag(cmd.Context(), res.VersionHash, opts.TagName, root.actor()); err != nil {
			return err
		}
	}

	return printWriteResult(cmd.OutOrStdout(), root.Format, res)
}

func loadAttrs(opts *WriteOptions) (attr.Snapshot, error) {
	if opts.Attrs != "" && opts.File != "" {
		return nil, fmt.Errorf("--attrs and --file are mutually exclusive")
	}

	data := []byte(opts.Attrs)
	if opts.File != "" {
		var err error
		data, err = os.ReadFile(opts.File)
		if err != nil {
			return nil, fmt.Errorf("read attributes file: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("attributes are required (--attrs or --file)")
	}

	snap, err := attr.ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("parse attributes: %w", err)
	}
	return snap, nil
}
