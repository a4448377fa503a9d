// Package cli implements the insights command: one-shot queries over a
// listing source, printed as a table or JSON.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"airbnb_insights/internal/adapters/observability"
	"airbnb_insights/internal/app"
	"airbnb_insights/internal/bootstrap"
	"airbnb_insights/internal/domain"
	"airbnb_insights/internal/shared"
)

const envPrefix = "INSIGHTS"

// NewRootCmd wires the command tree against its own viper instance so tests
// can build independent trees.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "insights",
		Short:         "Query Airbnb listings from the command line",
		Long:          "insights loads a listing table once and prints aggregations, dashboards or statistics over a filtered view.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = observability.NewLogger(v.GetString("env"))
		},
	}

	pf := root.PersistentFlags()
	pf.String("source", "file", "listing source: file|mongo|http|mysql|postgres")
	pf.String("data", "data/*.csv", "file or glob for the file source")
	pf.StringSlice("country", nil, "countries to keep (repeatable)")
	pf.StringSlice("property-type", nil, "property types to keep (repeatable)")
	pf.StringSlice("room-type", nil, "room types to keep (repeatable)")
	pf.Float64("price-min", 0, "lowest price kept")
	pf.Float64("price-max", math.Inf(1), "highest price kept")
	pf.String("format", "table", "output format: table|json")
	pf.String("env", "dev", "logging environment")
	_ = v.BindPFlags(pf)

	root.AddCommand(newAggregateCmd(v), newDashboardCmd(v, app.PageOverview), newDashboardCmd(v, app.PageExplore), newStatsCmd(v))
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newAggregateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Group the filtered listings and count or average them",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := filterFrom(v)
			if err != nil {
				return err
			}
			req := domain.AggregationRequest{GroupBy: domain.Column(v.GetString("group-by")), TopN: v.GetInt("top")}
			switch v.GetString("op") {
			case "count":
				req.Op = domain.Count()
			case "mean":
				req.Op = domain.MeanOf(domain.Column(v.GetString("column")))
			default:
				return fmt.Errorf("op must be count or mean")
			}
			if v.GetString("order") == "asc" {
				req.Order = domain.Ascending
			}

			q, done, err := openQuery(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer done()
			out, err := q.Aggregate(cmd.Context(), spec, req)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), v.GetString("format"), out, func(tw io.Writer) {
				fmt.Fprintf(tw, "%s\t%s\tCOUNT\n", strings.ToUpper(string(req.GroupBy)), strings.ToUpper(req.Op.String()))
				writeGroups(tw, out.Groups)
			})
		},
	}
	f := cmd.Flags()
	f.String("group-by", "country", "categorical column to group by")
	f.String("op", "count", "count|mean")
	f.String("column", "price", "numeric column averaged by mean")
	f.Int("top", 0, "keep only the first N groups (0 keeps all)")
	f.String("order", "desc", "asc|desc")
	_ = v.BindPFlags(f)
	return cmd
}

func newDashboardCmd(v *viper.Viper, page string) *cobra.Command {
	return &cobra.Command{
		Use:   page,
		Short: "Print every panel of the " + page + " page",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := filterFrom(v)
			if err != nil {
				return err
			}
			q, done, err := openQuery(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer done()
			d, err := q.Dashboard(cmd.Context(), page, spec)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), v.GetString("format"), d, func(tw io.Writer) {
				for _, p := range d.Panels {
					fmt.Fprintf(tw, "== %s\n", p.Title)
					if p.Kind == app.KindBox {
						fmt.Fprintln(tw, "KEY\tMIN\tQ1\tMEDIAN\tQ3\tMAX")
						for _, b := range p.Boxes {
							fmt.Fprintf(tw, "%s\t%g\t%g\t%g\t%g\t%g\n", label(b.Key), b.Min, b.Q1, b.Q2, b.Q3, b.Max)
						}
						continue
					}
					fmt.Fprintf(tw, "KEY\t%s\tCOUNT\n", strings.ToUpper(p.Op))
					writeGroups(tw, p.Groups)
				}
			})
		},
	}
}

func newStatsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Describe the numeric columns of the filtered listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := filterFrom(v)
			if err != nil {
				return err
			}
			q, done, err := openQuery(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer done()
			st, err := q.Stats(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), v.GetString("format"), st, func(tw io.Writer) {
				fmt.Fprintln(tw, "COLUMN\tCOUNT\tMEAN\tSTD\tMIN\t25%\t50%\t75%\tMAX\tOUTLIERS")
				for _, c := range st.Columns {
					fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%g\t%g\t%g\t%g\t%g\t%d\n",
						c.Column, c.Count, c.Mean, c.Std, c.Min, c.P25, c.P50, c.P75, c.Max, st.Outliers[c.Column])
				}
			})
		},
	}
}

func filterFrom(v *viper.Viper) (domain.FilterSpec, error) {
	return domain.NewFilterSpec(
		v.GetStringSlice("country"),
		v.GetStringSlice("property-type"),
		v.GetStringSlice("room-type"),
		v.GetFloat64("price-min"),
		v.GetFloat64("price-max"),
	)
}

func openQuery(ctx context.Context, v *viper.Viper) (*app.QueryService, func(), error) {
	cfg := shared.Load()
	cfg.DataPath = v.GetString("data")
	src, done, err := bootstrap.OpenSource(ctx, cfg, v.GetString("source"))
	if err != nil {
		return nil, done, err
	}
	return app.NewQueryService(src, nil, 0), done, nil
}

func render(w io.Writer, format string, v any, table func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("format must be table or json")
	}
}

func writeGroups(w io.Writer, gs []domain.GroupValue) {
	for _, g := range gs {
		fmt.Fprintf(w, "%s\t%.2f\t%d\n", label(g.Key), g.Value, g.Count)
	}
}

// label shows the missing-value category explicitly.
func label(k string) string {
	if k == "" {
		return "(missing)"
	}
	return k
}
