package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pricescout-backend/lib/extract"
)

func init() {
	rootCmd.AddCommand(acquireCmd)
}

var acquireCmd = &cobra.Command{
	Use:   "acquire <product-url>",
	Short: "Acquires a normalized record for one product url.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}

		rec := svc.AcquireProduct(cmd.Context(), args[0])
		renderRecords(rec)
		return nil
	},
}

func renderRecords(records ...extract.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Platform", "Title", "Price", "Currency", "In Stock", "Flags"})

	for _, r := range records {
		t.AppendRow(table.Row{
			r.SourcePlatform,
			r.Title,
			r.Price.StringFixed(2),
			r.Currency,
			r.InStock,
			recordFlags(r),
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func recordFlags(r extract.Record) string {
	flags := ""
	add := func(f string) {
		if flags != "" {
			flags += ","
		}
		flags += f
	}
	if r.BestPrice {
		add("best")
	}
	if r.Incomplete {
		add("incomplete")
	}
	if r.Partial {
		add("partial")
	}
	if r.Estimated {
		add("estimated")
	}
	if r.Unavailable {
		add("unavailable")
	}
	if flags == "" {
		flags = "-"
	}
	return flags
}
