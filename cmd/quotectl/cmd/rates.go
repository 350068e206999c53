package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shiva/courierquote/internal/model"
)

// ratesCmd prints the merged rate tables
var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Print the rate tables the quoting core would use",
	Long: `Print vehicles, services and the night rate after merging code defaults,
RATES_FILE and (with --db) the database rows.`,
	Args: cobra.NoArgs,
	RunE: runRates,
}

type ratesView struct {
	Vehicles []model.Vehicle       `json:"vehicles"`
	Services []model.Service       `json:"services"`
	Night    model.NightRateConfig `json:"night"`
	VATRate  float64               `json:"vat_rate"`
	Fallback float64               `json:"fallback_miles"`
}

func runRates(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(context.Background())
	if err != nil {
		return err
	}
	defer e.close()

	t := e.rates.Current()
	if jsonOutput {
		return printJSON(os.Stdout, ratesView{
			Vehicles: t.Vehicles,
			Services: t.Services.All(),
			Night:    t.Night,
			VATRate:  t.VATRate,
			Fallback: t.FallbackMiles,
		})
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VEHICLE\tNAME\tPER MILE\tADMIN FEE\tMIN CHARGE\tACTIVE")
	for _, v := range t.Vehicles {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%t\n", v.ID, v.Name, v.RatePerMile, v.AdminFee, v.MinCharge, v.Active)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SERVICE\tNAME\tMULTIPLIER\tALIASES\tACTIVE")
	for _, s := range t.Services.All() {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%t\n", s.ID, s.Name, s.Multiplier, strings.Join(s.Aliases, ","), s.Active)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	n := t.Night
	fmt.Printf("\nnight rate: enabled=%t window=%02d:00-%02d:00 multiplier=%.2f mode=%s\n",
		n.Enabled, n.StartHour, n.EndHour, n.Multiplier, n.ApplyMode)
	fmt.Printf("vat: %.2f%%  fallback distance: %.2f miles\n", t.VATRate, t.FallbackMiles)
	return nil
}
