// Package cmd - cost commands
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/export"
)

var (
	asOf     string
	costJSON bool
)

// costCmd groups the pricing commands
var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Price a position or roll up a division, department or the organization",
	Long: `Price positions and rollups from the current catalog, or from the
cost history in force at --as-of.

Amounts are rounded to cents for display; --json prints exact values.`,
}

var costPositionCmd = &cobra.Command{
	Use:   "position <id>",
	Short: "Full cost breakdown of one position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(cmd, func(e *cost.Engine) (any, func(io.Writer), error) {
			s, err := e.CalculatePositionCost(cmd.Context(), cost.PositionID(id))
			if err != nil {
				return nil, nil, err
			}
			return s, func(w io.Writer) { printPosition(w, s) }, nil
		})
	},
}

var costDivisionCmd = &cobra.Command{
	Use:   "division <id>",
	Short: "Division rollup by position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(cmd, func(e *cost.Engine) (any, func(io.Writer), error) {
			s, err := e.AggregateDivision(cmd.Context(), cost.DivisionID(id))
			if err != nil {
				return nil, nil, err
			}
			rows := make([]rollupRow, len(s.Positions))
			for i, p := range s.Positions {
				rows[i] = rollupRow{p.PositionTitle, p.AuthorizedCount, p.HardwareTotal, p.SoftwareTotal, p.GrandTotal}
			}
			return s, func(w io.Writer) { printRollup(w, s.DivisionName, rows, s.Totals) }, nil
		})
	},
}

var costDepartmentCmd = &cobra.Command{
	Use:   "department <id>",
	Short: "Department rollup by division",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(cmd, func(e *cost.Engine) (any, func(io.Writer), error) {
			s, err := e.AggregateDepartment(cmd.Context(), cost.DepartmentID(id))
			if err != nil {
				return nil, nil, err
			}
			rows := make([]rollupRow, len(s.Divisions))
			for i, d := range s.Divisions {
				rows[i] = rollupRow{d.DivisionName, d.TotalAuthorized, d.HardwareTotal, d.SoftwareTotal, d.GrandTotal}
			}
			return s, func(w io.Writer) { printRollup(w, s.DepartmentName, rows, s.Totals) }, nil
		})
	},
}

var costOrganizationCmd = &cobra.Command{
	Use:   "organization",
	Short: "Organization rollup by department",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *cost.Engine) (any, func(io.Writer), error) {
			s, err := e.AggregateOrganization(cmd.Context())
			if err != nil {
				return nil, nil, err
			}
			rows := make([]rollupRow, len(s.Departments))
			for i, d := range s.Departments {
				rows[i] = rollupRow{d.DepartmentName, d.TotalAuthorized, d.HardwareTotal, d.SoftwareTotal, d.GrandTotal}
			}
			return s, func(w io.Writer) { printRollup(w, "Organization", rows, s.Totals) }, nil
		})
	},
}

var costCoverageCmd = &cobra.Command{
	Use:   "coverage <software-id>",
	Short: "Positions and headcount a tenant item's coverage rules resolve to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEngine(cmd, func(e *cost.Engine) (any, func(io.Writer), error) {
			c, err := e.ResolveCoverage(cmd.Context(), cost.SoftwareID(id))
			if err != nil {
				return nil, nil, err
			}
			return c, func(w io.Writer) {
				fmt.Fprintf(w, "software %d: %d rules, %d positions, %d covered seats\n",
					c.SoftwareID, c.RuleCount, len(c.PositionIDs), c.Headcount)
			}, nil
		})
	},
}

func init() {
	costCmd.PersistentFlags().StringVar(&asOf, "as-of", "", "price from cost history in force at this RFC3339 time")
	costCmd.PersistentFlags().BoolVar(&costJSON, "json", false, "print exact values as JSON")

	costCmd.AddCommand(costPositionCmd)
	costCmd.AddCommand(costDivisionCmd)
	costCmd.AddCommand(costDepartmentCmd)
	costCmd.AddCommand(costOrganizationCmd)
	costCmd.AddCommand(costCoverageCmd)
}

// withEngine opens the database, picks the current or historical engine,
// runs fn and prints its result as text or JSON.
func withEngine(cmd *cobra.Command, fn func(e *cost.Engine) (any, func(io.Writer), error)) error {
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

	result, printText, err := fn(engine)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if costJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printText(out)
	return nil
}

// =============================================================================
// TEXT OUTPUT
// =============================================================================

func printPosition(w io.Writer, s *cost.PositionCostSummary) {
	fmt.Fprintf(w, "%s (%s)  %s / %s  authorized %d\n\n",
		s.PositionTitle, s.PositionCode, s.DepartmentName, s.DivisionName, s.AuthorizedCount)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "KIND\tITEM\tQTY\tUNIT\tPER PERSON\tTOTAL\t")
	for _, l := range s.HardwareLines {
		fmt.Fprintf(tw, "hardware\t%s\t%d\t%s\t%s\t%s\t\n",
			l.Name, l.Quantity, export.FormatMoney(l.UnitCost), export.FormatMoney(l.PerPersonCost), export.FormatMoney(l.PositionTotal))
	}
	for _, l := range s.SoftwareLines {
		name := l.Name
		if l.LicenseModel == cost.LicenseTenant {
			name = fmt.Sprintf("%s [%s, %d seats]", l.Name, l.Allocation, l.CoveredHeadcount)
		}
		fmt.Fprintf(tw, "software\t%s\t%d\t%s\t%s\t%s\t\n",
			name, l.Quantity, export.FormatMoney(l.UnitCost), export.FormatMoney(l.PerPersonCost), export.FormatMoney(l.PositionTotal))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nper person: hardware %s  software %s  total %s\n",
		export.FormatMoney(s.HardwarePerPerson), export.FormatMoney(s.SoftwarePerPerson), export.FormatMoney(s.TotalPerPerson))
	fmt.Fprintf(w, "position:   hardware %s  software %s  total %s\n",
		export.FormatMoney(s.HardwareTotal), export.FormatMoney(s.SoftwareTotal), export.FormatMoney(s.GrandTotal))
}

type rollupRow struct {
	name       string
	authorized int
	hardware   decimal.Decimal
	software   decimal.Decimal
	total      decimal.Decimal
}

func printRollup(w io.Writer, title string, rows []rollupRow, t cost.Totals) {
	fmt.Fprintf(w, "%s\n\n", title)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "NAME\tAUTHORIZED\tHARDWARE\tSOFTWARE\tTOTAL\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t\n",
			r.name, r.authorized, export.FormatMoney(r.hardware), export.FormatMoney(r.software), export.FormatMoney(r.total))
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%s\t%s\t%s\t\n",
		t.TotalAuthorized, export.FormatMoney(t.HardwareTotal), export.FormatMoney(t.SoftwareTotal), export.FormatMoney(t.GrandTotal))
	tw.Flush()
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
