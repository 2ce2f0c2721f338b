package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlib/library-backend/internal/database"
)

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "System health and maintenance",
}

var systemHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database and cache connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			w := newTabWriter()
			if err := a.db.PingContext(ctx); err != nil {
				fmt.Fprintf(w, "Database\tDOWN (%v)\n", err)
			} else {
				fmt.Fprintln(w, "Database\tOK")
			}
			if err := a.store.Ping(ctx); err != nil {
				fmt.Fprintf(w, "Cache\tdisabled (%v)\n", err)
			} else {
				fmt.Fprintln(w, "Cache\tOK")
			}
			return w.Flush()
		})
	},
}

var systemInitDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create missing tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := database.Init(ctx, a.db); err != nil {
				return err
			}
			fmt.Println("Schema initialized")
			return nil
		})
	},
}

var systemResetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Drop and recreate all tables (destructive)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm("This DELETES ALL DATA. Continue?") {
			return fmt.Errorf("cancelled")
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := database.Drop(ctx, a.db); err != nil {
				return err
			}
			if err := database.Init(ctx, a.db); err != nil {
				return err
			}
			a.store.Flush(ctx)
			fmt.Println("Database reset")
			return nil
		})
	},
}

var systemCheckTablesCmd = &cobra.Command{
	Use:   "check-tables",
	Short: "Report which tables exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			tables, err := database.Tables(ctx, a.db)
			if err != nil {
				return err
			}
			w := newTabWriter()
			for name, present := range tables {
				state := "MISSING"
				if present {
					state = "ok"
				}
				fmt.Fprintf(w, "%s\t%s\n", name, state)
			}
			return w.Flush()
		})
	},
}

var systemClearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Flush every cached entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.store.Ping(ctx); err != nil {
				return fmt.Errorf("cache unavailable: %w", err)
			}
			a.store.Flush(ctx)
			fmt.Println("Cache cleared")
			return nil
		})
	},
}

var systemInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show connection and row-count overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			var version string
			if err := a.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
				return err
			}
			counts, err := database.CountRows(ctx, a.db)
			if err != nil {
				return err
			}
			w := newTabWriter()
			fmt.Fprintf(w, "MySQL\t%s\n", version)
			cacheState := "ok"
			if err := a.store.Ping(ctx); err != nil {
				cacheState = "disabled"
			}
			fmt.Fprintf(w, "Cache\t%s\n", cacheState)
			for table, n := range counts {
				fmt.Fprintf(w, "rows:%s\t%d\n", table, n)
			}
			return w.Flush()
		})
	},
}

var systemBackupInfoCmd = &cobra.Command{
	Use:   "backup-info",
	Short: "Show what a backup would need to cover",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			counts, err := database.CountRows(ctx, a.db)
			if err != nil {
				return err
			}
			var total int64
			w := newTabWriter()
			fmt.Fprintln(w, "TABLE\tROWS")
			for table, n := range counts {
				fmt.Fprintf(w, "%s\t%d\n", table, n)
				total += n
			}
			fmt.Fprintf(w, "total\t%d\n", total)
			return w.Flush()
		})
	},
}

var systemRotateLogsCmd = &cobra.Command{
	Use:   "rotate-logs",
	Short: "Rotate the loan event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		src := filepath.Join("logs", "loans.log")
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No log file to rotate")
				return nil
			}
			return err
		}
		dst := src + "." + time.Now().UTC().Format("20060102T150405")
		if err := os.Rename(src, dst); err != nil {
			return err
		}
		fmt.Printf("Rotated %s -> %s\n", src, dst)
		return nil
	},
}

var systemPruneTokensCmd = &cobra.Command{
	Use:   "prune-tokens",
	Short: "Delete expired refresh tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			n, err := a.tokens.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d expired token(s)\n", n)
			return nil
		})
	},
}

func init() {
	systemCmd.AddCommand(systemHealthCmd, systemInitDBCmd, systemResetDBCmd,
		systemCheckTablesCmd, systemClearCacheCmd, systemInfoCmd,
		systemBackupInfoCmd, systemRotateLogsCmd, systemPruneTokensCmd)
	rootCmd.AddCommand(systemCmd)
}
