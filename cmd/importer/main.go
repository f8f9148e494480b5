package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/allendavis-developer/pricebook/config"
	"github.com/allendavis-developer/pricebook/internal/repositories/attribute"
	"github.com/allendavis-developer/pricebook/internal/repositories/category"
	"github.com/allendavis-developer/pricebook/internal/repositories/conditiongrade"
	"github.com/allendavis-developer/pricebook/internal/repositories/product"
	"github.com/allendavis-developer/pricebook/internal/repositories/variant"
	"github.com/allendavis-developer/pricebook/pkg/database"
	"github.com/allendavis-developer/pricebook/pkg/ingest"
	"github.com/allendavis-developer/pricebook/pkg/listing"
)

// maxRecordBytes bounds one JSONL line; snapshot payloads can be large.
const maxRecordBytes = 10 * 1024 * 1024

func main() {
	root := &cobra.Command{
		Use:           "pricebook-importer",
		Short:         "Catalog snapshot import tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newImportCommand())
	root.AddCommand(newMigrateCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newImportCommand() *cobra.Command {
	var batchSize int
	var skipErrors bool

	cmd := &cobra.Command{
		Use:   "import <snapshot.jsonl>",
		Short: "Ingest a marketplace snapshot file into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			records, malformed, err := readRecords(ctx, args[0], logger)
			if err != nil {
				return err
			}
			logger.WithContext(ctx).WithFields(map[string]any{
				"file":      args[0],
				"records":   len(records),
				"malformed": malformed,
			}).Info("Loaded snapshot file")

			db, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			categories := category.NewRepository(db, logger)
			products := product.NewRepository(db, logger)
			attributes := attribute.NewRepository(db, logger)
			grades := conditiongrade.NewRepository(db, logger)
			variants := variant.NewRepository(db, logger)

			pipeline := ingest.NewPipeline(db, logger, categories, products, attributes, grades, variants)
			if err := pipeline.EnsureDefaults(ctx); err != nil {
				return err
			}

			stats, err := pipeline.Ingest(ctx, records, ingest.Options{
				BatchSize:  batchSize,
				SkipErrors: skipErrors,
			})
			if stats != nil {
				stats.Total += malformed
				stats.Skipped += malformed
				logger.WithContext(ctx).WithFields(map[string]any{
					"total":            stats.Total,
					"processed":        stats.Processed,
					"skipped":          stats.Skipped,
					"errors":           stats.Errors,
					"products_created": stats.ProductsCreated,
					"variants_created": stats.VariantsCreated,
					"variants_updated": stats.VariantsUpdated,
					"price_changes":    stats.PriceChanges,
				}).Info("Import finished")
			}
			return err
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", ingest.DefaultBatchSize, "records per transaction")
	cmd.Flags().BoolVar(&skipErrors, "skip-errors", false, "keep going past upstream error records")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			db, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return migrate(cfg, db, logger)
		},
	}
}

// readRecords streams a JSONL snapshot file into memory. Blank lines are
// skipped; a line that is not valid JSON is logged and counted, never fatal.
func readRecords(ctx context.Context, path string, logger ectologger.Logger) ([]listing.RawRecord, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	var records []listing.RawRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	line := 0
	malformed := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var record listing.RawRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			malformed++
			logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"line": line}).Warn("Skipping malformed snapshot line")
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed, err
	}
	return records, malformed, nil
}

func connect(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	return database.Connect(ctx, database.ConnectConfig{
		Driver:          "postgres",
		Host:            cfg.Database.Host,
		Port:            strconv.Itoa(cfg.Database.Port),
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Name:            cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
}

func migrate(cfg *config.Config, db database.DB, logger ectologger.Logger) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("database does not expose a raw connection for migrations")
	}

	driver, err := migratepg.WithInstance(instance.DB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	svc := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.Database.MigrationFolderPath,
		AutoRollback:        true,
	})
	return svc.Migrate(cfg.Database.Name, driver)
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapCfg zap.Config
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}
