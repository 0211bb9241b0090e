package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodsense/internal/artifact"
	"github.com/andresmejia3/moodsense/internal/utils"
)

var (
	resetDB    bool
	resetFiles bool
	resetLocks bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Database, Result Files, Camera Locks)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles && !resetLocks {
			resetDB = true
			resetFiles = true
			resetLocks = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
				if err := requireDB(cmd.Context()); err != nil {
					utils.Die("Database unavailable", err, nil)
				}
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetFiles {
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete all result files in %s?", Cfg.Output.Dir)) {
				fmt.Println("🗑️  Clearing Result Files...")
				files, err := artifact.List(Cfg.Output.Dir)
				if err != nil {
					utils.Die("Failed to list result files", err, nil)
				}
				for _, f := range files {
					removePath(f)
				}
			}
		}

		if resetLocks {
			if confirm(reader, "⚠️  Are you sure you want to remove camera lock files? Only do this when no session is running.") {
				fmt.Println("🗑️  Clearing Camera Locks...")
				removePath(Cfg.Camera.LockDir)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "database", false, "Clear PostgreSQL database")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear emotion_summary_* and realtime_assessment_* files")
	resetCmd.Flags().BoolVar(&resetLocks, "locks", false, "Clear stale camera lock files")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
