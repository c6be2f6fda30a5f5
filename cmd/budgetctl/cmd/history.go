// Package cmd - history and export commands
package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/export"
)

var (
	historyAt string

	exportFormat string
	exportOut    string
	scopeDepts   []int64
	scopeDivs    []int64
)

// historyCmd prints an item's effective-dated cost records
var historyCmd = &cobra.Command{
	Use:   "history <hardware|software> <id>",
	Short: "Show the cost history of a catalog item",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistory,
}

// exportCmd writes a department or position report
var exportCmd = &cobra.Command{
	Use:       "export <departments|positions>",
	Short:     "Write a cost report as CSV or XLSX",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"departments", "positions"},
	RunE:      runExport,
}

func init() {
	historyCmd.Flags().StringVar(&historyAt, "at", "", "show only the record in force at this RFC3339 time")

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv, xlsx)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().Int64SliceVar(&scopeDepts, "department-id", nil, "limit to these departments")
	exportCmd.Flags().Int64SliceVar(&scopeDivs, "division-id", nil, "limit to the departments of these divisions")
	exportCmd.Flags().StringVar(&asOf, "as-of", "", "price from cost history in force at this RFC3339 time")
}

func runHistory(cmd *cobra.Command, args []string) error {
	kind := cost.ItemKind(args[0])
	if !kind.Valid() {
		return fmt.Errorf("unknown item kind %q (want hardware or software)", args[0])
	}
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	item := cost.ItemRef{Kind: kind, ID: id}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	var records []cost.CostHistoryRecord
	if historyAt != "" {
		at, err := time.Parse(time.RFC3339Nano, historyAt)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		rec, err := s.store.CostRecordAt(cmd.Context(), item, at)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%s has no cost record in force at %s", item, historyAt)
		}
		records = append(records, *rec)
	} else {
		records, err = s.store.CostRecords(cmd.Context(), item)
		if err != nil {
			return err
		}
	}

	printHistory(cmd.OutOrStdout(), records)
	return nil
}

func printHistory(w io.Writer, records []cost.CostHistoryRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EFFECTIVE\tEND\tUNIT\tPER LICENSE\tTOTAL\tCHANGED BY\tREASON")
	for _, r := range records {
		end := "open"
		if r.EndDate != nil {
			end = r.EndDate.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.EffectiveDate.Format(time.RFC3339), end,
			nullMoney(r.Snapshot.UnitCost), nullMoney(r.Snapshot.CostPerLicense), nullMoney(r.Snapshot.TotalCost),
			r.ChangedBy, r.ChangeReason)
	}
	tw.Flush()
}

func nullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return export.FormatMoney(d.Decimal)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "xlsx" {
		return fmt.Errorf("unknown format %q (want csv or xlsx)", exportFormat)
	}

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	engine := s.engine
	if asOf != "" {
		t, err := time.Parse(time.RFC3339Nano, asOf)
		if err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
		engine = engine.AsOf(s.store, t)
	}

	scope := cost.OrganizationScope()
	if len(scopeDepts) > 0 || len(scopeDivs) > 0 {
		scope = cost.Scope{}
		for _, id := range scopeDepts {
			scope.DepartmentIDs = append(scope.DepartmentIDs, cost.DepartmentID(id))
		}
		for _, id := range scopeDivs {
			scope.DivisionIDs = append(scope.DivisionIDs, cost.DivisionID(id))
		}
	}

	ctx := cmd.Context()
	depts, err := cost.FilterDepartments(ctx, s.store, scope)
	if err != nil {
		return err
	}

	var table export.Table
	switch args[0] {
	case "departments":
		summaries, err := engine.DepartmentBreakdown(ctx, depts)
		if err != nil {
			return err
		}
		table = export.DepartmentTable(summaries)
	case "positions":
		positions, err := engine.PositionBreakdown(ctx, depts)
		if err != nil {
			return err
		}
		table = export.PositionTable(positions)
	}

	w := cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if exportFormat == "xlsx" {
		err = export.WriteXLSX(w, table)
	} else {
		err = export.WriteCSV(w, table)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", exportFormat, err)
	}
	if exportOut != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(table.Rows), exportOut)
	}
	return nil
}
