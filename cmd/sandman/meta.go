package sandman

import (
	"context"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/edgeflare/sandman/pkg/pgx/schema"
	"github.com/edgeflare/sandman/pkg/resource"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var metaCmd = &cobra.Command{
	Use:   "meta [table...]",
	Short: "Print the column types of each resource",
	Long: `meta loads the tables of the configured schema and prints, as YAML, the
column types each resource reports at /{endpoint}/meta. With no arguments
every table with a primary key is printed.`,
	RunE: runMeta,
}

func runMeta(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.REST.PG.ConnString)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	snap, err := schema.Load(ctx, conn, cfg.REST.Schema)
	if err != nil {
		return err
	}
	meta, err := describe(cfg.REST.Schema, schema.TablesOf(snap, cfg.REST.Schema), args, resourceOptions(cfg.REST))
	if err != nil {
		return err
	}
	return writeYAML(cmd.OutOrStdout(), meta)
}

// describe merges the Meta of the named tables, or of every table with a
// primary key when names is empty.
func describe(schemaName string, tables []schema.Table, names []string, opts []resource.Option) (map[string]map[string]string, error) {
	byName := make(map[string]schema.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	selected := tables
	if len(names) > 0 {
		selected = make([]schema.Table, 0, len(names))
		for _, name := range names {
			t, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("table %q not found in schema %q", name, schemaName)
			}
			selected = append(selected, t)
		}
	}

	out := make(map[string]map[string]string, len(selected))
	for _, t := range selected {
		m, err := resource.NewRowMapper(t.Descriptor(), opts...)
		if err != nil {
			if len(names) > 0 {
				return nil, fmt.Errorf("table %q: %w", t.Name, err)
			}
			continue
		}
		maps.Copy(out, m.Meta())
	}
	return out, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
