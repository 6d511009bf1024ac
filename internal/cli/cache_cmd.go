package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/engine/cache"
)

const bytesPerKiB = 1024

// newCacheCmd creates the cache command group.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Manage the flow listing cache"}
	cmd.AddCommand(newCacheInfoCmd(), newCacheClearCmd(), newCachePruneCmd())
	return cmd
}

// openCache opens the cache directory for maintenance even when lookups are disabled.
func openCache() (*cache.FileStore, error) {
	cfg := config.GetGlobalConfig()
	dir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}
	return cache.NewFileStore(dir, true, cfg.Cache.TTLSeconds)
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache location, size and TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}
			count, err := store.Count()
			if err != nil {
				return err
			}
			size, err := store.Size()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directory: %s\n", store.Directory())
			fmt.Fprintf(out, "Enabled: %t\n", config.GetGlobalConfig().Cache.Enabled)
			fmt.Fprintf(out, "TTL: %s\n", cache.FormatDuration(time.Duration(store.TTL())*time.Second))
			fmt.Fprintf(out, "Entries: %d\n", count)
			fmt.Fprintf(out, "Size: %.1f KiB\n", float64(size)/bytesPerKiB)
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}
			if err = store.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			logger.Info().Ctx(cmd.Context()).Str("dir", store.Directory()).Msg("cache cleared")
			cmd.Println("Cache cleared")
			return nil
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}
			removed, err := store.CleanupExpired()
			if err != nil {
				return fmt.Errorf("failed to prune cache: %w", err)
			}
			cmd.Printf("Removed %d expired entries\n", removed)
			return nil
		},
	}
}
