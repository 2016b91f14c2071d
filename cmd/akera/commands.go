package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/akera-connector/pkg/connector/akera"
	"github.com/ajitpratap0/akera-connector/pkg/connector/core"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/filter"
	"github.com/ajitpratap0/akera-connector/pkg/json"
	"github.com/ajitpratap0/akera-connector/pkg/model"
)

// modelsFile is the layout of the --models file
type modelsFile struct {
	Models []*model.Definition `yaml:"models"`
}

func loadModels(path string) ([]*model.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read models file")
	}
	var f modelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse models file")
	}
	return f.Models, nil
}

// ensureModel defines name from the server catalog when no model file
// defined it
func ensureModel(ctx context.Context, conn *akera.Connector, name, schema string) error {
	if _, err := conn.Model(name); err == nil {
		return nil
	} else if !errors.IsNotFound(err) {
		return err
	}
	def, err := conn.DiscoverModelDefinition(ctx, name, core.DiscoveryOptions{Schema: schema})
	if err != nil {
		return fmt.Errorf("model %s is not defined and could not be discovered: %w", name, err)
	}
	def.Name = name
	return conn.Define(def)
}

func writeJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func newPingCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "ping",
		Aliases: []string{"health"},
		Short:   "Check that the application server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, conn *akera.Connector) error {
				status := conn.Health(ctx)
				if err := writeJSON(cmd.OutOrStdout(), status); err != nil {
					return err
				}
				if status.Status != "healthy" {
					return fmt.Errorf("server is %s: %s", status.Status, status.Error)
				}
				return nil
			})
		},
	}
}

func newFindCommand(c *cli) *cobra.Command {
	var (
		raw    string
		schema string
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "find <model>",
		Short: "Find model instances matching a JSON filter",
		Example: `  akera find Customer --filter '{"where":{"country":"USA"},"limit":10}'
  akera find OrderLine -m models.yaml --filter '{"order":"price DESC"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var f *filter.Filter
			if raw != "" {
				var err error
				if f, err = filter.Parse([]byte(raw)); err != nil {
					return err
				}
			}
			return c.run(cmd, func(ctx context.Context, conn *akera.Connector) error {
				if err := ensureModel(ctx, conn, args[0], schema); err != nil {
					return err
				}
				rows, err := conn.Find(ctx, args[0], f)
				if err != nil {
					return err
				}

				enc := json.NewStreamingEncoder(cmd.OutOrStdout(), true)
				enc.SetPretty(pretty, "  ")
				for _, row := range rows {
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
				return enc.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&raw, "filter", "f", "", "Filter as JSON")
	cmd.Flags().StringVar(&schema, "schema", "", "Schema used to discover an undefined model")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the output")
	return cmd
}

func newCountCommand(c *cli) *cobra.Command {
	var (
		raw    string
		schema string
	)
	cmd := &cobra.Command{
		Use:   "count <model>",
		Short: "Count model instances matching a JSON where clause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var where filter.Condition
			if raw != "" {
				var err error
				if where, err = filter.ParseWhere([]byte(raw)); err != nil {
					return err
				}
			}
			return c.run(cmd, func(ctx context.Context, conn *akera.Connector) error {
				if err := ensureModel(ctx, conn, args[0], schema); err != nil {
					return err
				}
				n, err := conn.Count(ctx, args[0], where)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&raw, "where", "w", "", "Where clause as JSON")
	cmd.Flags().StringVar(&schema, "schema", "", "Schema used to discover an undefined model")
	return cmd
}

func newDiscoverCommand(c *cli) *cobra.Command {
	var (
		opts  core.DiscoveryOptions
		limit int
		skip  int
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover schemas, tables and model definitions",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Schema, "schema", "", "Schema (database) to inspect, defaults to the connection database")
	flags.StringVar(&opts.Owner, "owner", "", "Alias of --schema that takes precedence")
	flags.IntVar(&limit, "limit", 0, "Maximum number of entries")
	flags.IntVar(&skip, "skip", 0, "Number of entries to skip")

	options := func() core.DiscoveryOptions {
		o := opts
		o.Limit = limit
		if skip > 0 {
			o.Skip = filter.Int(skip)
		}
		return o
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "schemas",
			Short: "List the databases of the server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, conn *akera.Connector) error {
					schemas, err := conn.DiscoverDatabaseSchemas(ctx, options().PagingOptions)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), schemas)
				})
			},
		},
		&cobra.Command{
			Use:   "models",
			Short: "List the tables of a schema",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, conn *akera.Connector) error {
					models, err := conn.DiscoverModelDefinitions(ctx, options())
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), models)
				})
			},
		},
		&cobra.Command{
			Use:   "properties <table>",
			Short: "List the columns of a table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, conn *akera.Connector) error {
					props, err := conn.DiscoverModelProperties(ctx, args[0], options())
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), props)
				})
			},
		},
		&cobra.Command{
			Use:   "keys <table>",
			Short: "List the primary key columns of a table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, conn *akera.Connector) error {
					keys, err := conn.DiscoverPrimaryKeys(ctx, args[0], options())
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), keys)
				})
			},
		},
		&cobra.Command{
			Use:   "model <table>",
			Short: "Print a model definition for a table, usable as a --models file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, conn *akera.Connector) error {
					def, err := conn.DiscoverModelDefinition(ctx, args[0], options())
					if err != nil {
						return err
					}
					enc := yaml.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent(2)
					if err := enc.Encode(modelsFile{Models: []*model.Definition{def}}); err != nil {
						return err
					}
					return enc.Close()
				})
			},
		},
	)
	return cmd
}
