// Package cli implements the vcat command line interface.
package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vcatdb/vcat/internal/config"
	"github.com/vcatdb/vcat/internal/schema"
	"github.com/vcatdb/vcat/internal/store"
	"github.com/vcatdb/vcat/internal/version"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DB         string
	Actor      string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vcat CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vcat",
		Short: "vcat - versioned provenance catalog",
		Long:  "A catalog for provenance entities with transaction-ordered history and content-addressed version pinning.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "", "actor id stamped on transactions (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewWriteCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTagCommand(opts))
	cmd.AddCommand(NewRetagCommand(opts))
	cmd.AddCommand(NewTagsCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openCore loads configuration, the type registry, and the store, and
// returns a ready Core plus a cleanup function.
func openCore(opts *RootOptions) (*version.Core, func() error, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if opts.DB != "" {
		cfg.DB = opts.DB
	}
	if opts.Actor == "" {
		opts.Actor = cfg.Actor
	}

	log := logrus.New()
	if opts.Verbose {
		log.SetLevel(logrus.DebugLevel)
	} else if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	types, err := schema.Builtin()
	if err != nil {
		return nil, nil, err
	}
	if cfg.TypesDir != "" {
		extra, err := schema.LoadDir(cfg.TypesDir)
		if err != nil {
			return nil, nil, err
		}
		types = append(types, extra...)
	}

	registry, err := schema.NewRegistry(types)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.DB, registry.All(), log)
	if err != nil {
		return nil, nil, err
	}

	core := version.New(st, registry, version.Options{
		Logger:          log,
		MaxWriteRetries: cfg.MaxWriteRetries,
	})

	return core, st.Close, nil
}

// actor builds the Actor stamped on mutations.
func (opts *RootOptions) actor() version.Actor {
	id := opts.Actor
	if id == "" {
		id = "cli"
	}
	return version.Actor{ID: id, Origin: "cli"}
}
