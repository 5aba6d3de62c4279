package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobgc/internal/cli/output"
	"github.com/marmos91/blobgc/pkg/catalog"
	"github.com/marmos91/blobgc/pkg/config"
	"github.com/marmos91/blobgc/pkg/refgraph"
)

var refsOutput string

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Print the columns that keep aliases alive",
	Long: `Discover every foreign key column referencing blob_alias.id.

An alias referenced through any of these columns is never pruned. Columns
of tables listed in gc.reference_denylist are shown as detached: their rows
are deleted together with the alias they point at.

Examples:
  # Show the reference graph
  blobgc refs

  # As JSON
  blobgc refs --output json`,
	RunE: runRefs,
}

func init() {
	refsCmd.Flags().StringVarP(&refsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// columnList renders the reference graph as a table.
type columnList refgraph.Graph

func (c columnList) Headers() []string { return []string{"TABLE", "COLUMN", "KEEPS ALIAS"} }

func (c columnList) Rows() [][]string {
	rows := make([][]string, 0, len(c.Referencing)+len(c.Detached))
	for _, col := range c.Referencing {
		rows = append(rows, []string{col.Table, col.Column, "yes"})
	}
	for _, col := range c.Detached {
		rows = append(rows, []string{col.Table, col.Column, "no (denylisted)"})
	}
	return rows
}

// refsView is the JSON/YAML shape of the reference graph.
type refsView struct {
	Referencing []string `json:"referencing" yaml:"referencing"`
	Detached    []string `json:"detached" yaml:"detached"`
}

func columnNames(cols []catalog.Column) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.String())
	}
	return names
}

func runRefs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(refsOutput)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := config.NewCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	graph, err := refgraph.New(store, cfg.GC.ReferenceDenylist).Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover references: %w", err)
	}

	if format == output.FormatTable {
		if len(graph.Referencing)+len(graph.Detached) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No columns reference blob_alias.id")
			return nil
		}
		return output.PrintTable(cmd.OutOrStdout(), columnList(graph))
	}

	view := refsView{Referencing: columnNames(graph.Referencing), Detached: columnNames(graph.Detached)}
	return output.NewPrinter(cmd.OutOrStdout(), format).Print(view)
}
