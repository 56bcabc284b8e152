// Command redline reviews a single .docx from the command line and writes
// the revised document plus a JSON report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/config"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/pipeline"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/rules"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/llm"
)

func main() {
	inPath := flag.String("in", "", "input .docx")
	outPath := flag.String("out", "redlined.docx", "output .docx")
	cfgPath := flag.String("config", "config/config.toml", "config file")
	rulesPath := flag.String("rules", "", "rules file (overrides config)")
	reportPath := flag.String("report", "", "write JSON review report here")
	flag.Parse()

	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if *rulesPath != "" {
		cfg.RulesPath = *rulesPath
	}

	ruleSet, err := rules.Load(cfg.RulesPath)
	if err != nil {
		logger.Fatal("Failed to load ruleset", zap.Error(err))
	}

	ctx := context.Background()
	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}

	var cache pipeline.RecallCache
	if cfg.Cache.RedisURL != "" {
		rc, err := pipeline.NewRedisCache(cfg.Cache.RedisURL, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		if err != nil {
			logger.Warn("similarity cache unavailable", zap.Error(err))
		} else {
			cache = rc
		}
	}

	redliner := core.NewRedliner(client, ruleSet, cache, cfg, logger)

	docBytes, err := os.ReadFile(*inPath)
	if err != nil {
		logger.Fatal("Failed to read input", zap.Error(err))
	}

	result, err := redliner.ReviewDocument(ctx, docBytes)
	if err != nil {
		logger.Fatal("Review failed", zap.Error(err))
	}

	if err := os.WriteFile(*outPath, result.Revised, 0o644); err != nil {
		logger.Fatal("Failed to write output", zap.Error(err))
	}

	if *reportPath != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			logger.Fatal("Failed to encode report", zap.Error(err))
		}
		if err := os.WriteFile(*reportPath, data, 0o644); err != nil {
			logger.Fatal("Failed to write report", zap.Error(err))
		}
	}

	fmt.Printf("Applied %d of %d edits (%d skipped), validation coverage %.0f%%\n",
		len(result.EmitReport.Applied),
		len(result.Review.EditSet.Edits),
		len(result.EmitReport.Skipped),
		result.ValidationCoverage*100)
}
