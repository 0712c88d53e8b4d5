package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"gorm.io/gorm"

	"recipecost/internal/config"
	"recipecost/internal/costing"
	"recipecost/internal/db"
	"recipecost/internal/db/mock"
	"recipecost/internal/importer"
	applog "recipecost/internal/log"
	"recipecost/internal/recipes"
	"recipecost/internal/store"
)

// backend is what the commands work against.
type backend struct {
	db    *gorm.DB
	rates *store.ParameterRates
	costs *recipes.Service
}

type openFunc func(ctx context.Context) (*backend, error)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp(openConfigured).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openConfigured connects using the environment, falling back to the mock
// kitchen when no database URL is set.
func openConfigured(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applog.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}

	var database *gorm.DB
	if cfg.Database.UseMock || strings.TrimSpace(cfg.Database.URL) == "" {
		database, err = mock.New(ctx)
	} else {
		database, err = db.Configure(cfg.Database)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return newBackend(database, costing.RatesFromFloat(cfg.Costing.LaborRate, cfg.Costing.EnergyRate)), nil
}

func newBackend(database *gorm.DB, defaults costing.Rates) *backend {
	rates := store.NewParameterRates(database, defaults)
	return &backend{db: database, rates: rates, costs: recipes.NewService(database, rates)}
}

func newApp(open openFunc) *cli.Command {
	return &cli.Command{
		Name:  "recipectl",
		Usage: "Maintain ingredient prices and recipe costs",
		Commands: []*cli.Command{
			importCmd(open),
			recomputeCmd(open),
			syncProductCostCmd(open),
		},
	}
}

func importCmd(open openFunc) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import an ingredient price list and recompute affected recipes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the CSV or XLSX price list",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "delimiter",
				Aliases: []string{"d"},
				Value:   ",",
				Usage:   "CSV delimiter: comma, semicolon or tab",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "File format (csv or xlsx); detected from the file name when empty",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			delimiter, err := importer.ParseDelimiter(cmd.String("delimiter"))
			if err != nil {
				return err
			}
			path := cmd.String("file")
			format := importer.Format(strings.ToLower(strings.TrimSpace(cmd.String("format"))))
			if format == "" {
				format = importer.DetectFormat(path)
			}
			payload, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			b, err := open(ctx)
			if err != nil {
				return err
			}
			var (
				report     *importer.Report
				recomputed int
			)
			err = b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var err error
				report, err = importer.New(store.New(tx)).Import(ctx, importer.Request{
					Payload:   payload,
					Delimiter: delimiter,
					Format:    format,
				})
				if err != nil {
					return err
				}
				if len(report.IngredientIDs) == 0 {
					return nil
				}
				costs := b.costs.WithTx(tx, b.rates.WithDB(tx))
				if recomputed, err = costs.RecomputeForIngredients(ctx, report.IngredientIDs...); err != nil {
					return fmt.Errorf("recompute recipes: %w", err)
				}
				return nil
			})
			if err != nil {
				return err
			}

			out := writer(cmd)
			fmt.Fprintln(out, report.Message())
			fmt.Fprintf(out, "Recipes recomputed: %d\n", recomputed)
			return nil
		},
	}
}

func recomputeCmd(open openFunc) *cli.Command {
	return &cli.Command{
		Name:  "recompute",
		Usage: "Recompute stored recipe costs",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "recipe",
				Usage: "Recompute one recipe and the recipes containing it; all recipes when omitted",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, err := open(ctx)
			if err != nil {
				return err
			}
			out := writer(cmd)
			if id := cmd.Uint("recipe"); id != 0 {
				result, err := b.costs.RecomputeRecipe(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Recipe %d: total %s, grand total %s, per portion %s\n",
					id, result.TotalCost, result.GrandTotal, result.CostPerPortion)
				for _, warning := range result.Warnings {
					fmt.Fprintf(out, "warning: line %d: %s\n", warning.LineID, warning.Message)
				}
				return nil
			}
			count, err := b.costs.RecomputeAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Recipes recomputed: %d\n", count)
			return nil
		},
	}
}

func syncProductCostCmd(open openFunc) *cli.Command {
	return &cli.Command{
		Name:  "sync-product-cost",
		Usage: "Copy recipe cost per portion onto linked products",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "recipe",
				Usage: "Only sync this recipe; every recipe with a product when omitted",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b, err := open(ctx)
			if err != nil {
				return err
			}
			var ids []uint
			if id := cmd.Uint("recipe"); id != 0 {
				ids = append(ids, id)
			}
			updated, err := b.costs.UpdateProductCost(ctx, ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(writer(cmd), "Products updated: %d\n", updated)
			return nil
		},
	}
}

func writer(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}
