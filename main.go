package main

import (
	"context"
	"flag"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gokaycavdar/go-nightguard/internal/config"
	"github.com/gokaycavdar/go-nightguard/internal/httpapi"
	"github.com/gokaycavdar/go-nightguard/internal/logging"
	"github.com/gokaycavdar/go-nightguard/internal/pipeline"
	"github.com/gokaycavdar/go-nightguard/pkg/baseline"
	"github.com/gokaycavdar/go-nightguard/pkg/engine"
	"github.com/gokaycavdar/go-nightguard/pkg/metrics"
	"github.com/gokaycavdar/go-nightguard/pkg/rules"
	"github.com/gokaycavdar/go-nightguard/pkg/storage"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML configuration (empty: environment only)")
	flag.Parse()

	// 1. Konfigürasyon ve Logger
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Konfigürasyon Hatası: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Logger Hatası: %v", err)
	}

	// 2. Servisleri Başlat
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	var store storage.ConnectionStore = storage.NewMemoryStore()
	if cfg.ClickHouse.Enabled() {
		db, err := storage.OpenClickHouse(context.Background(), storage.ClickHouseConfig{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
			Table:    cfg.ClickHouse.Table,
		})
		if err != nil {
			log.Fatalf("ClickHouse Hatası: %v", err)
		}
		defer db.Close()

		ch := storage.NewClickHouseStore(db, cfg.ClickHouse.Table)
		if err := ch.InitSchema(context.Background()); err != nil {
			log.Fatalf("ClickHouse Şema Hatası: %v", err)
		}
		store = ch
	}

	// 3. Motoru ve Kuralları Yükle
	inv := &pipeline.Investigation{
		Assembler: &baseline.Assembler{Nights: cfg.Analysis.BaselineNights, Failures: recorder},
		Engine: engine.New(
			engine.WithLogger(logger),
			engine.WithRecorder(recorder),
			engine.WithLoiteringRule(rules.NewLoiteringRule(cfg.Analysis.LoiteringDuration())),
		),
		Observer: recorder,
	}

	// 4. Web Sunucusunu Başlat (Gin)
	srv := httpapi.NewServer(inv, store, reg, logger)
	logger.Info("server listening", "addr", cfg.HTTP.Addr, "archive", cfg.ClickHouse.Enabled())
	if err := srv.Router().Run(cfg.HTTP.Addr); err != nil {
		log.Fatalf("Sunucu Hatası: %v", err)
	}
}
