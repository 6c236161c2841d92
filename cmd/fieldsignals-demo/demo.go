package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/fieldsignals"
	"github.com/conduit-lang/fieldsignals/bus"
	"github.com/conduit-lang/fieldsignals/redisink"
	"github.com/conduit-lang/fieldsignals/schema"
	"github.com/conduit-lang/fieldsignals/sqlhost"
)

func runDemo(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	db, err := sql.Open(config.Database.Driver, config.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY,
		title TEXT,
		body TEXT,
		rating REAL,
		published_at TEXT
	)`); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	registry := schema.NewRegistry()
	lifecycle := bus.New()
	signals := fieldsignals.New(lifecycle, registry, fieldsignals.WithLogger(logger))

	dialect := sqlhost.DialectGeneric
	if config.Database.Driver == "postgres" {
		dialect = sqlhost.DialectPostgres
	}
	host := sqlhost.New(db, lifecycle, registry, config.Database.Driver, dialect)

	article := sqlhost.NewModelDef("Article", "articles", "id",
		sqlhost.Column{Name: "id"},
		sqlhost.Column{Name: "title"},
		sqlhost.Column{Name: "body"},
		sqlhost.Column{Name: "rating"},
		sqlhost.Column{Name: "published_at", Normalizer: schema.TimeNormalizer(time.RFC3339)},
	)
	if err := host.Register(article); err != nil {
		return err
	}
	registry.SetReady()

	heading := color.New(color.FgCyan, color.Bold)
	fieldName := color.New(color.FgYellow)

	if _, err := signals.PreSaveChanged.Connect(func(ctx context.Context, e fieldsignals.ChangeEvent) error {
		heading.Printf("about to save %s, changed fields:\n", e.Instance.Model().ModelName())
		for _, name := range e.Changed.Names() {
			ch := e.Changed[name]
			fmt.Printf("  %s: %v -> %v\n", fieldName.Sprint(name), ch.Old, ch.New)
		}
		return nil
	}, article, config.Watch, &fieldsignals.ConnectOptions{Name: "console"}); err != nil {
		return err
	}

	if _, err := signals.PostSaveChanged.Connect(func(ctx context.Context, e fieldsignals.ChangeEvent) error {
		logger.Info("saved",
			zap.String("model", e.Instance.Model().ModelName()),
			zap.Bool("created", e.Created),
			zap.String("using", e.Using),
			zap.Strings("fields", e.Changed.Names()),
		)
		return nil
	}, article, config.Watch, &fieldsignals.ConnectOptions{Name: "audit-log"}); err != nil {
		return err
	}

	if config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: config.Redis.Addr})
		defer client.Close()

		sink := redisink.New(client, config.Redis.Channel)
		if _, err := signals.PostSaveChanged.Connect(sink.Listener(), article, config.Watch,
			&fieldsignals.ConnectOptions{Name: "redis-sink"}); err != nil {
			return err
		}
	}

	rec, err := host.NewRecord(ctx, article, map[string]any{
		"id":           1,
		"title":        "draft",
		"body":         "hello",
		"rating":       3.5,
		"published_at": "2026-01-02T15:04:05Z",
	})
	if err != nil {
		return err
	}

	// First save: nothing changed since initialization, so the listeners stay quiet.
	if err := host.Save(ctx, rec); err != nil {
		return err
	}

	rec.Set("title", "published")
	rec.Set("rating", 4.0)
	if err := host.Save(ctx, rec); err != nil {
		return err
	}

	// Same moment, different representation: no notification.
	rec.Set("published_at", time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC))
	if err := host.Save(ctx, rec); err != nil {
		return err
	}

	heading.Println("done")
	return nil
}
