// Package app wires configuration into the services shared by the API, the
// worker and the command line tool.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbon-scribe/ghg-disclosure-backend/internal/activities"
	"carbon-scribe/ghg-disclosure-backend/internal/config"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure"
	"carbon-scribe/ghg-disclosure-backend/internal/disclosure/xbrl"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/factors"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/quality"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions/uncertainty"
	"carbon-scribe/ghg-disclosure-backend/internal/reports/delivery"
	"carbon-scribe/ghg-disclosure-backend/pkg/storage"
)

// NewLogger builds a zap logger at the configured level
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}
	return zc.Build()
}

// Stores holds the activity and factor database handles
type Stores struct {
	Activities *activities.PostgresRepository
	Factors    *factors.Store

	sqlDB  *sqlx.DB
	gormDB *gorm.DB
	cache  *factors.CachedSource
}

// OpenStores connects the sqlx activity repository and the gorm factor store
// to the configured database, migrating the factor tables when asked to
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Stores, error) {
	url := cfg.GetDatabaseURL()

	logger.Info("Connecting to database",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName))
	db, err := activities.Connect(ctx, url, cfg.MaxConnections, cfg.MaxIdleConns, cfg.MaxLifetime)
	if err != nil {
		return nil, err
	}

	gdb, err := factors.OpenDatabase(url)
	if err != nil {
		db.Close()
		return nil, err
	}

	stores := &Stores{
		Activities: activities.NewPostgresRepository(db),
		Factors:    factors.NewStore(gdb),
		sqlDB:      db,
		gormDB:     gdb,
	}
	if cfg.AutoMigrate {
		if err := stores.Activities.Migrate(ctx); err != nil {
			stores.Close()
			return nil, err
		}
		if err := stores.Factors.AutoMigrate(ctx); err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to migrate factor tables: %w", err)
		}
	}
	return stores, nil
}

// FactorSource returns the factor store, behind a TTL cache when ttl is positive
func (s *Stores) FactorSource(ttl time.Duration) disclosure.FactorSource {
	if ttl <= 0 {
		return s.Factors
	}
	if s.cache == nil {
		s.cache = factors.NewCachedSource(s.Factors, ttl)
	}
	return s.cache
}

// Close releases both database handles
func (s *Stores) Close() error {
	if s.cache != nil {
		s.cache.Stop()
	}
	var errs []error
	if s.sqlDB != nil {
		errs = append(errs, s.sqlDB.Close())
	}
	if s.gormDB != nil {
		if sqlDB, err := s.gormDB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// ServiceConfig translates the calculation and disclosure sections into
// disclosure service defaults
func ServiceConfig(cfg *config.Config) (disclosure.ServiceConfig, error) {
	sc := disclosure.DefaultServiceConfig()

	method, err := uncertainty.ParseMethod(cfg.Calculation.UncertaintyMethod)
	if err != nil {
		return sc, err
	}
	policy, err := disclosure.ParseMissingFactorPolicy(cfg.Calculation.MissingFactorPolicy)
	if err != nil {
		return sc, err
	}
	taxonomy, err := LoadTaxonomy(cfg.Disclosure)
	if err != nil {
		return sc, err
	}

	sc.Resolver = factors.Options{OutlierThreshold: cfg.Calculation.OutlierThreshold}
	sc.Defaults = disclosure.BuildOptions{
		Method:              method,
		Iterations:          cfg.Calculation.Iterations,
		Seed:                cfg.Calculation.Seed,
		Workers:             cfg.Calculation.Workers,
		MissingFactorPolicy: policy,
		Scorer: quality.NewScorer(quality.Options{
			ConsistencyPlaceholder: cfg.Calculation.ConsistencyPlaceholder,
			MinPeerSamples:         cfg.Calculation.MinPeerSamples,
		}),
		Taxonomy: &taxonomy,
	}
	sc.Metadata = xbrl.Metadata{
		IdentifierScheme:      cfg.Disclosure.IdentifierScheme,
		Language:              cfg.Disclosure.Language,
		ThousandsSeparator:    cfg.Disclosure.ThousandsSeparator,
		ConsolidationApproach: cfg.Disclosure.ConsolidationApproach,
	}
	return sc, nil
}

// LoadTaxonomy returns the taxonomy file when one is configured, otherwise the
// built-in taxonomy with any prefix, namespace or schema overrides applied
func LoadTaxonomy(cfg config.DisclosureConfig) (xbrl.Taxonomy, error) {
	if cfg.TaxonomyFile != "" {
		data, err := os.ReadFile(cfg.TaxonomyFile)
		if err != nil {
			return xbrl.Taxonomy{}, fmt.Errorf("failed to read taxonomy file: %w", err)
		}
		var taxonomy xbrl.Taxonomy
		if err := json.Unmarshal(data, &taxonomy); err != nil {
			return xbrl.Taxonomy{}, fmt.Errorf("failed to parse taxonomy file: %w", err)
		}
		return taxonomy.Normalized(), nil
	}

	taxonomy := xbrl.DefaultTaxonomy()
	if cfg.TaxonomyPrefix != "" {
		taxonomy.Prefix = cfg.TaxonomyPrefix
	}
	if cfg.TaxonomyNamespace != "" {
		taxonomy.Namespace = cfg.TaxonomyNamespace
	}
	if cfg.TaxonomySchemaRef != "" {
		taxonomy.SchemaRef = cfg.TaxonomySchemaRef
	}
	return taxonomy, nil
}

// NewPublisher connects the S3, DynamoDB, SNS and SES clients behind a
// publisher. It returns nil when no bucket is configured.
func NewPublisher(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (disclosure.Publisher, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts := storage.AWSOptions{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		UsePathStyle:    cfg.UsePathStyle,
	}
	awsCfg, err := storage.LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	var manifests delivery.ManifestStore
	if cfg.ManifestTable != "" {
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = &cfg.Endpoint
			}
		})
		manifests = delivery.NewDynamoManifestStore(client, cfg.ManifestTable)
	}

	var notifier *delivery.Notifier
	if cfg.TopicARN != "" || cfg.EmailFrom != "" {
		notifier = delivery.NewNotifier(sns.NewFromConfig(awsCfg), cfg.TopicARN, sesv2.NewFromConfig(awsCfg), cfg.EmailFrom, logger)
	}

	logger.Info("Disclosure publishing enabled",
		zap.String("bucket", cfg.Bucket),
		zap.String("manifest_table", cfg.ManifestTable),
		zap.Bool("notifications", notifier != nil))

	return delivery.NewPublisher(storage.NewS3Client(awsCfg, opts), manifests, notifier,
		delivery.PublisherConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix}, logger), nil
}

// PreviousPeriod returns the last complete month, quarter or year before now,
// as inclusive UTC dates
func PreviousPeriod(now time.Time, period string) (time.Time, time.Time, error) {
	now = now.UTC()
	var start, next time.Time
	switch period {
	case "", "month":
		next = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start = next.AddDate(0, -1, 0)
	case "quarter":
		firstMonth := time.Month((int(now.Month())-1)/3*3 + 1)
		next = time.Date(now.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC)
		start = next.AddDate(0, -3, 0)
	case "year":
		next = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		start = next.AddDate(-1, 0, 0)
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown reporting period %q", period)
	}
	return start, next.AddDate(0, 0, -1), nil
}
