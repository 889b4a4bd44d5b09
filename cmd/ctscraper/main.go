// cmd/ctscraper/main.go

// ctscraper runs the ingestion stages against the upstream catalog API.
//
// Due to the design of the upstream API and its relatively poor
// performance, ingestion is split into independently re-runnable stages:
//
//	scrape-inventory  fetch static product properties
//	scrape-skus       fetch the SKUs of every known product
//	scrape-prices     fetch current prices for every known SKU
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jgalar/CanadianTracker/internal/config"
	"github.com/jgalar/CanadianTracker/internal/database"
	"github.com/jgalar/CanadianTracker/internal/scraper"
	"github.com/jgalar/CanadianTracker/internal/storage"
	"github.com/jgalar/CanadianTracker/internal/triangle"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-debug] <scrape-inventory|scrape-skus|scrape-prices>\n", os.Args[0])
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	debug := flag.Bool("debug", false, "set logging level to debug")
	metricsAddr := flag.String("metrics-addr", os.Getenv("CT_METRICS_ADDR"), "expose prometheus metrics on this address while the run lasts")
	flag.Usage = usage
	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if flag.NArg() != 1 {
		usage()
	}
	stage := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	metrics := triangle.NewMetrics()
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logrus.WithError(err).Warn("Metrics listener stopped")
			}
		}()
	}

	limiter := triangle.NewLimiter(cfg.Scraper)
	client := triangle.NewClient(cfg.Scraper, limiter, metrics)
	repo := storage.NewRepository(db)
	runner := scraper.NewRunner(client, client, repo, cfg.Scraper)

	// A signal cancels the run between entities; everything already
	// reconciled or sampled is retained.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var report *scraper.Report
	switch stage {
	case "scrape-inventory":
		report, err = runner.ScrapeInventory(ctx)
	case "scrape-skus":
		report, err = runner.ScrapeSkus(ctx)
	case "scrape-prices":
		report, err = runner.ScrapePrices(ctx)
	default:
		usage()
	}

	if report != nil {
		report.Log()
	}
	if err != nil {
		if ctx.Err() != nil {
			logrus.Warn("Run cancelled; partial results retained")
			os.Exit(130)
		}
		logrus.WithError(err).Fatal("Run failed")
	}
}
