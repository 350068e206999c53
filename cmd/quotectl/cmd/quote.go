package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shiva/courierquote/internal/model"
	"github.com/shiva/courierquote/internal/repository"
	"github.com/shiva/courierquote/internal/service"
)

var (
	quoteDistance       float64
	quoteCollection     string
	quoteDelivery       string
	quoteBusinessCredit bool
)

// quoteCmd prints the full vehicle × service matrix
var quoteCmd = &cobra.Command{
	Use:   "quote <pickup> <delivery>",
	Short: "Quote every vehicle and service for a route",
	Long: `Resolve the route distance once and price every active vehicle and
service against it.

With --distance the provider is skipped and the given miles are used.`,
	Args: cobra.ExactArgs(2),
	RunE: runQuote,
}

func init() {
	quoteCmd.Flags().Float64Var(&quoteDistance, "distance", 0, "use this many miles instead of calling the provider")
	quoteCmd.Flags().StringVar(&quoteCollection, "at", "", "collection time (RFC 3339, default now)")
	quoteCmd.Flags().StringVar(&quoteDelivery, "deliver-by", "", "delivery time (RFC 3339)")
	quoteCmd.Flags().BoolVar(&quoteBusinessCredit, "business-credit", false, "waive the admin fee")
}

// fixedDistance answers every resolution with the same miles.
type fixedDistance float64

func (f fixedDistance) Resolve(context.Context, model.Location, model.Location) (model.Resolution, error) {
	return model.Resolution{DistanceMiles: float64(f), Provider: model.ProviderClient}, nil
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if quoteDistance < 0 {
		return fmt.Errorf("--distance must not be negative")
	}
	collection, err := parseAt("at", quoteCollection)
	if err != nil {
		return err
	}
	delivery, err := parseAt("deliver-by", quoteDelivery)
	if err != nil {
		return err
	}

	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	var resolver service.Resolver
	if cmd.Flags().Changed("distance") {
		resolver = fixedDistance(quoteDistance)
	} else {
		httpClient := &http.Client{Timeout: e.cfg.Distance.Timeout}
		cache := repository.NewMemoryDistanceCache(e.cfg.Distance.CacheTTL)
		resolver = service.NewDistanceResolverFromConfig(e.cfg.Distance, cache, httpClient, e.log)
	}

	quotes := service.NewQuoteService(resolver, e.rates, nil, e.cfg.Pricing.Location(), e.log)
	matrix, err := quotes.BuildQuote(ctx, service.QuoteRequest{
		Pickup:         args[0],
		Delivery:       args[1],
		CollectionTime: collection,
		DeliveryTime:   delivery,
		BusinessCredit: quoteBusinessCredit,
	})
	if err != nil {
		if matrix != nil {
			fmt.Fprintf(os.Stderr, "provider: %s  error: %s\n", matrix.Resolution.Provider, matrix.Resolution.Error)
		}
		return err
	}

	if jsonOutput {
		return printJSON(os.Stdout, matrix)
	}

	res := matrix.Resolution
	fmt.Printf("Distance: %.2f miles (provider %s", res.DistanceMiles, res.Provider)
	if res.CacheHit {
		fmt.Print(", cached")
	}
	if res.FallbackUsed {
		fmt.Print(", FALLBACK")
	}
	fmt.Print(")\n\n")

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VEHICLE\tSERVICE\tPRICE\tNIGHT PRICE\tNIGHT")
	for _, k := range matrix.Order {
		q := matrix.Quotes[k]
		night := ""
		if q.Breakdown.NightApplied {
			night = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			q.VehicleID, q.ServiceID, q.Price.StringFixed(2), q.NightReferencePrice.StringFixed(2), night)
	}
	return tw.Flush()
}
