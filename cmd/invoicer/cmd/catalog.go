package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TanWaiKen/invoice-ai-excel/internal/catalog"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

var catalogPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the customers parsed from a knowledge-base workbook",
	Long: `Catalog loads the knowledge-base workbook exactly as a processing run
would and prints the detected columns, every parsed customer and the rows
that were skipped. Use it to check the header scan of a new workbook.

Examples:
  invoicer catalog --catalog kb.xlsx`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateWorkbook(catalogPath)
	},
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().StringVarP(&catalogPath, "catalog", "c", "", "knowledge-base workbook (required)")
	catalogCmd.MarkFlagRequired("catalog")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cat := catalog.New(logger.GetGlobalLogger())
	report, err := cat.LoadWorkbook(contextOf(cmd), catalogPath)
	if err != nil {
		return err
	}
	return printCatalog(cmd.OutOrStdout(), report, cat)
}

func printCatalog(out io.Writer, report *catalog.LoadReport, cat *catalog.Catalog) error {
	fmt.Fprintf(out, "Workbook: %s\n", report.Source)
	fmt.Fprintf(out, "Sheet:    %s\n", report.Sheet)
	fmt.Fprintf(out, "Columns:  %s\n\n", report.Columns)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCUSTOMER\tPRICE\tFORMULA\tCOMPANY\tWORKER")
	for i, c := range cat.All() {
		company, worker := "-", "-"
		if c.CompanyAmount.Valid {
			company = c.CompanyAmount.Decimal.StringFixed(2)
		}
		if c.WorkerAmount.Valid {
			worker = c.WorkerAmount.Decimal.StringFixed(2)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, c.Name, c.PricePerUnit.StringFixed(2), c.Formula.Display(), company, worker)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nLoaded %d customer(s)\n", report.Loaded)
	if report.Skipped != nil && report.Skipped.Count() > 0 {
		fmt.Fprintf(out, "%s\n", report.Skipped.Format(20))
	}
	return nil
}
