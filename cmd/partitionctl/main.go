// partitionctl manages room partition files directly on disk, without going
// through the HTTP server: provisioning, backup, optimization, inspection,
// and counter reconciliation against the room registry.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jinyphp/chat-sub002/internal/chat"
	"github.com/jinyphp/chat-sub002/internal/config"
	"github.com/jinyphp/chat-sub002/internal/partition"
	"github.com/jinyphp/chat-sub002/internal/presence"
	"github.com/jinyphp/chat-sub002/internal/store"
)

func main() {
	cfg := config.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	prov, err := partition.NewProvisioner(cfg.PartitionRoot, cfg.PartitionCacheSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("partition root unavailable")
	}
	defer prov.Close()

	rootCmd := &cobra.Command{
		Use:   "partitionctl",
		Short: "Room partition management",
		Long:  "partitionctl operates on per-room partition files under " + cfg.PartitionRoot + ".",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "create <room-id>",
		Short: "Provision a partition for a room (created today)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseRoomID(args[0])
			if err != nil {
				return err
			}
			now := time.Now()
			if _, err := prov.Open(cmd.Context(), roomID, now); err != nil {
				return err
			}
			fmt.Println(prov.ResolveLocation(roomID, now))
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "delete <room-id>",
		Short: "Remove a room's partition file permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseRoomID(args[0])
			if err != nil {
				return err
			}
			return prov.Delete(roomID)
		},
	})

	backupCmd := &cobra.Command{
		Use:   "backup <room-id>",
		Short: "Copy a room's partition into the backup directory",
		Args:  cobra.ExactArgs(1),
	}
	backupDir := backupCmd.Flags().String("dest", "", "destination directory (default <root>/backups)")
	backupCmd.RunE = func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomID(args[0])
		if err != nil {
			return err
		}
		dest := *backupDir
		if dest == "" {
			dest = cfg.PartitionRoot + "/backups"
		}
		path, err := prov.Backup(roomID, dest)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	}
	rootCmd.AddCommand(backupCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "optimize <room-id>",
		Short: "Vacuum and analyze a room's partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseRoomID(args[0])
			if err != nil {
				return err
			}
			return prov.Optimize(roomID)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "size <room-id>",
		Short: "Print a room's partition size in bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseRoomID(args[0])
			if err != nil {
				return err
			}
			size, err := prov.SizeOf(roomID)
			if err != nil {
				return err
			}
			fmt.Println(size)
			return nil
		},
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List partition files",
	}
	listDate := listCmd.Flags().String("date", "", "limit to rooms created on YYYY-MM-DD")
	listCmd.RunE = func(cmd *cobra.Command, args []string) error {
		var (
			infos []partition.PartitionInfo
			err   error
		)
		if *listDate != "" {
			day, perr := time.Parse("2006-01-02", *listDate)
			if perr != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %q", *listDate)
			}
			infos, err = prov.ListByDate(day.Year(), int(day.Month()), day.Day())
		} else {
			infos, err = prov.ListAll()
		}
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Printf("%d\t%s\t%d\t%s\n", info.RoomID, info.Date, info.SizeBytes, info.Path)
		}
		return nil
	}
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats <year> <month>",
		Short: "Aggregate partition stats for one month",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[0])
			}
			month, err := strconv.Atoi(args[1])
			if err != nil || month < 1 || month > 12 {
				return fmt.Errorf("invalid month %q", args[1])
			}
			stats, err := prov.MonthlyStats(year, month)
			if err != nil {
				return err
			}
			fmt.Printf("rooms: %d\nbytes: %d\n", stats.RoomCount, stats.TotalBytes)
			for day, n := range stats.PerDay {
				fmt.Printf("%s: %d\n", day, n)
			}
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "recount <room-id>",
		Short: "Reconcile the registry's message counter with the partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := parseRoomID(args[0])
			if err != nil {
				return err
			}
			registry, err := openRegistry(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer registry.Close()

			svc := chat.NewService(registry, prov, presence.NewMemoryStore(), cfg.MaxMessageLength, logger)
			count, err := svc.Recount(cmd.Context(), roomID)
			if err != nil {
				return err
			}
			fmt.Println(count)
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func parseRoomID(arg string) (int64, error) {
	roomID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || roomID <= 0 {
		return 0, fmt.Errorf("invalid room id %q", arg)
	}
	return roomID, nil
}

func openRegistry(ctx context.Context, cfg *config.Config) (store.Registry, error) {
	if cfg.RegistryURL != "" {
		return store.NewPostgresRegistry(ctx, cfg.RegistryURL)
	}
	return store.NewSQLiteRegistry(ctx, cfg.RegistryPath)
}
