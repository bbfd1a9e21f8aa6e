package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dukex/wardflow/pkg/changes"
	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/config"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/multiplexer"
	"github.com/dukex/wardflow/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

type view struct {
	name string
	keys []string
	sub  *changes.Subscription
}

func runWatch(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("wardflow-watch")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchConfig, err := config.LoadWatchConfig(command.String("config"))
	if err != nil {
		return err
	}

	feedConfig := cmd.ChangeFeedConfig{
		Kind:         command.String("change-feed"),
		DatabaseURL:  command.String("database-url"),
		RedisURL:     command.String("redis-url"),
		GatewayURL:   command.String("gateway-url"),
		GatewayToken: command.String("gateway-token"),
		EntityTypes:  entityTypes(watchConfig.Views),
	}

	var (
		loader changes.Loader
		feed   *cmd.ChangeFeed
	)

	if databaseURL := command.String("database-url"); databaseURL != "" {
		var store persistence.Store

		store, feed, err = cmd.OpenStore(ctx, databaseURL, feedConfig, logger)
		if err != nil {
			return err
		}

		defer func() {
			_ = store.Close(context.Background())
		}()

		loader = store
	} else {
		feed, err = cmd.NewChangeFeed(ctx, feedConfig, nil, logger)
		if err != nil {
			return err
		}
	}

	defer func() {
		_ = feed.Close()
	}()

	if feed.Transport == nil {
		return fmt.Errorf("change feed %q cannot be followed", feedConfig.Kind)
	}

	mux := multiplexer.New(feed.Transport, multiplexer.DefaultConfig(), logger)

	defer func() {
		_ = mux.Close()
	}()

	client := changes.NewClient(mux, loader, logger)

	views := make([]*view, 0, len(watchConfig.Views))

	for _, viewConfig := range watchConfig.Views {
		descriptors := viewConfig.Build()

		sub, err := client.Subscribe(ctx, watchConfig.TenantID, descriptors...)
		if err != nil {
			return fmt.Errorf("failed to open view %s: %w", viewConfig.Name, err)
		}

		defer func() {
			_ = sub.Close()
		}()

		v := &view{name: viewConfig.Name, keys: cacheKeys(descriptors), sub: sub}
		views = append(views, v)

		go follow(ctx, v, logger.With("view", v.name))
	}

	logger.InfoContext(ctx, "Watching views", "tenant_id", watchConfig.TenantID, "views", len(views))

	ticker := time.NewTicker(watchConfig.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down watch")

			return nil
		case <-ticker.C:
			for _, v := range views {
				logSizes(ctx, v, logger)
			}
		}
	}
}

// follow logs status transitions and cache updates until the subscription ends.
func follow(ctx context.Context, v *view, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.sub.Done():
			logger.WarnContext(ctx, "View stopped", "status", v.sub.Status(), "error", v.sub.Err())

			return
		case status := <-v.sub.StatusChanges():
			logger.InfoContext(ctx, "Connection status changed", "status", status)
		case <-v.sub.Updates():
			logSizes(ctx, v, logger)
		}
	}
}

func logSizes(ctx context.Context, v *view, logger *slog.Logger) {
	attrs := make([]any, 0, 2*len(v.keys)+2)
	attrs = append(attrs, "view", v.name)

	for _, key := range v.keys {
		attrs = append(attrs, key, len(v.sub.List(key)))
	}

	logger.InfoContext(ctx, "View contents", attrs...)
}

func cacheKeys(descriptors []models.SubscriptionDescriptor) []string {
	var keys []string

	for _, descriptor := range descriptors {
		for _, key := range descriptor.AffectedCacheKeys {
			if !slices.Contains(keys, key) {
				keys = append(keys, key)
			}
		}
	}

	return keys
}

func entityTypes(views []config.ViewConfig) []string {
	var types []string

	for _, viewConfig := range views {
		for _, descriptor := range viewConfig.Build() {
			if !slices.Contains(types, descriptor.EntityType) {
				types = append(types, descriptor.EntityType)
			}
		}
	}

	return types
}
