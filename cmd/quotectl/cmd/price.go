package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiva/courierquote/internal/service"
)

var (
	priceVehicle        string
	priceService        string
	priceDistance       float64
	priceCollection     string
	priceDelivery       string
	priceBusinessCredit bool
)

// priceCmd runs the calculator once and prints every intermediate value
var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price one vehicle and service for a distance",
	Example: `  quotectl price --vehicle small_van --service standard --distance 40
  quotectl price --vehicle luton_van --service dedicated --distance 12 --at 2026-03-10T23:30:00Z`,
	Args: cobra.NoArgs,
	RunE: runPrice,
}

func init() {
	priceCmd.Flags().StringVar(&priceVehicle, "vehicle", "", "vehicle id (required)")
	priceCmd.Flags().StringVar(&priceService, "service", "standard", "service id or alias")
	priceCmd.Flags().Float64Var(&priceDistance, "distance", 0, "route distance in miles (required)")
	priceCmd.Flags().StringVar(&priceCollection, "at", "", "collection time (RFC 3339, default now)")
	priceCmd.Flags().StringVar(&priceDelivery, "deliver-by", "", "delivery time (RFC 3339)")
	priceCmd.Flags().BoolVar(&priceBusinessCredit, "business-credit", false, "waive the admin fee")
	_ = priceCmd.MarkFlagRequired("vehicle")
	_ = priceCmd.MarkFlagRequired("distance")
}

func runPrice(cmd *cobra.Command, args []string) error {
	if priceDistance < 0 {
		return fmt.Errorf("--distance must not be negative")
	}
	collection, err := parseAt("at", priceCollection)
	if err != nil {
		return err
	}
	delivery, err := parseAt("deliver-by", priceDelivery)
	if err != nil {
		return err
	}

	e, err := loadEnv(context.Background())
	if err != nil {
		return err
	}
	defer e.close()

	at := time.Now()
	if collection != nil {
		at = *collection
	}

	table := e.rates.Current()
	calc := service.NewCalculator(table.Night, e.cfg.Pricing.Location())
	b := calc.CalculateByID(table, priceVehicle, priceService, service.PriceInput{
		DistanceMiles:  priceDistance,
		CollectionTime: at,
		DeliveryTime:   delivery,
		BusinessCredit: priceBusinessCredit,
	})
	if !b.Priced {
		return fmt.Errorf("no active tariff for vehicle %q and service %q", priceVehicle, priceService)
	}

	if jsonOutput {
		return printJSON(os.Stdout, b)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value string
	}{
		{"vehicle", b.VehicleID},
		{"service", string(b.ServiceID)},
		{"distance (miles)", fmt.Sprintf("%.2f", b.DistanceMiles)},
		{"rate per mile", b.RatePerMileBase.StringFixed(2)},
		{"rate applied", b.RatePerMileApplied.StringFixed(2)},
		{"distance cost", b.DistanceCost.StringFixed(2)},
		{"minimum charge", b.MinCharge.StringFixed(2)},
		{"chargeable", b.ChargeableCost.StringFixed(2)},
		{"service multiplier", b.ServiceMultiplier.String()},
		{"admin fee", b.AdminFee.StringFixed(2)},
		{"night applied", fmt.Sprintf("%t", b.NightApplied)},
		{"base price", b.BasePrice.StringFixed(2)},
		{"night surcharge", b.NightSurcharge.StringFixed(2)},
		{"final price", b.FinalPrice.StringFixed(2)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.label, r.value)
	}
	return tw.Flush()
}
