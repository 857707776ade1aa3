// Package main provides the episode API entry point: the HTTP server plus
// schema and topic administration.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/config"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/postgres"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/redpanda"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "episode-api",
		Short: "Clinical episode coordinator API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(topicsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the episode API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetString("directory")
			publish, _ := cmd.Flags().GetBool("publish-events")
			return runServer(serveOptions{directorySeed: seed, publishEvents: publish})
		},
	}
	cmd.Flags().String("directory", "", "JSON directory seed for STORE=memory")
	cmd.Flags().Bool("publish-events", false, "Publish domain events to the bus after commit when STORE=memory")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *postgres.Migrator) error {
				n, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("failed to apply migrations: %w", err)
				}
				fmt.Printf("Applied %d migration(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *postgres.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(fn func(ctx context.Context, m *postgres.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrations need STORE=postgres, got %q", cfg.Store)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, postgres.NewMigrator(pool, postgres.Migrations(), logger))
}

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Bus topic administration",
	}

	ensureCmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create the episode topics that do not exist yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			partitions, _ := cmd.Flags().GetInt32("partitions")
			replication, _ := cmd.Flags().GetInt16("replication")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, _ := zap.NewProduction()
			defer logger.Sync()

			admin, err := redpanda.NewAdmin(cfg.Brokers(), logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			ctx := context.Background()
			if err := admin.EnsureTopics(ctx, partitions, replication); err != nil {
				return fmt.Errorf("failed to ensure topics: %w", err)
			}
			topics, err := admin.ListTopics(ctx)
			if err != nil {
				return err
			}
			for _, t := range topics {
				fmt.Println(t)
			}
			return nil
		},
	}
	ensureCmd.Flags().Int32("partitions", 3, "Partitions per topic")
	ensureCmd.Flags().Int16("replication", 1, "Replication factor")
	cmd.AddCommand(ensureCmd)

	lagCmd := &cobra.Command{
		Use:   "lag",
		Short: "Show consumer group lag per partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			group, _ := cmd.Flags().GetString("group")
			if group == "" {
				group = cfg.KafkaConsumerGroup
			}
			admin, err := redpanda.NewAdmin(cfg.Brokers(), zap.NewNop())
			if err != nil {
				return err
			}
			defer admin.Close()

			lag, err := admin.GetConsumerGroupLag(context.Background(), group)
			if err != nil {
				return fmt.Errorf("failed to read lag: %w", err)
			}
			fmt.Printf("%-40s %-10s %s\n", "TOPIC", "PARTITION", "LAG")
			for topic, partitions := range lag {
				for p, l := range partitions {
					fmt.Printf("%-40s %-10d %d\n", topic, p, l)
				}
			}
			return nil
		},
	}
	lagCmd.Flags().String("group", "", "Consumer group (defaults to KAFKA_CONSUMER_GROUP)")
	cmd.AddCommand(lagCmd)
	return cmd
}
