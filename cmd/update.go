// cmd/update.go
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/openvectors/vecimport/internal/update"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Manage vecimport updates",
	Long: `Check for, install, and manage vecimport updates.

A previous version is always kept for rollback if an update misbehaves.

Examples:
  vecimport update check      # Check for available updates
  vecimport update install    # Download and install the latest version
  vecimport update status     # Show update status and versions
  vecimport update rollback   # Restore the previous version
  vecimport update enable     # Enable background update checks
  vecimport update disable    # Disable background update checks`,
	Run: func(cmd *cobra.Command, args []string) {
		showUpdateStatus()
	},
}

var updateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for available updates",
	Run: func(cmd *cobra.Command, args []string) {
		checkForUpdate()
	},
}

var updateInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and install the latest version",
	Long: `Downloads the latest release from GitHub, verifies the checksum,
backs up the current binary, and swaps in the new one.

If the new binary fails to start, the previous one is restored.`,
	Run: func(cmd *cobra.Command, args []string) {
		installUpdate()
	},
}

var updateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the previous version",
	Run: func(cmd *cobra.Command, args []string) {
		rollbackUpdate()
	},
}

var updateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show update status and version information",
	Run: func(cmd *cobra.Command, args []string) {
		showUpdateStatus()
	},
}

var updateEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable background update checks",
	Run: func(cmd *cobra.Command, args []string) {
		setAutoCheck(true)
	},
}

var updateDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable background update checks",
	Run: func(cmd *cobra.Command, args []string) {
		setAutoCheck(false)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.AddCommand(updateCheckCmd)
	updateCmd.AddCommand(updateInstallCmd)
	updateCmd.AddCommand(updateRollbackCmd)
	updateCmd.AddCommand(updateStatusCmd)
	updateCmd.AddCommand(updateEnableCmd)
	updateCmd.AddCommand(updateDisableCmd)
}

func checkForUpdate() {
	fmt.Println("Checking for updates...")

	client := update.NewClient(Version)
	release, err := client.CheckForUpdate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking for updates: %v\n", err)
		os.Exit(1)
	}

	if state, stateErr := update.LoadState(Version); stateErr == nil {
		tag := ""
		if release != nil {
			tag = release.TagName
		}
		state.RecordCheck(tag)
		_ = state.Save()
	}

	if release == nil {
		fmt.Printf("You are running the latest version (%s)\n", Version)
		return
	}

	fmt.Printf("\nUpdate available: %s -> %s\n", Version, release.TagName)
	fmt.Printf("Release: %s\n", release.Name)
	fmt.Printf("URL: %s\n", release.HTMLURL)
	fmt.Println("\nRun 'vecimport update install' to update.")
}

func installUpdate() {
	fmt.Println("Checking for updates...")

	client := update.NewClient(Version)
	release, err := client.CheckForUpdate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking for updates: %v\n", err)
		os.Exit(1)
	}

	if release == nil {
		fmt.Printf("You are running the latest version (%s)\n", Version)
		return
	}

	fmt.Printf("\nUpdate available: %s -> %s\n", Version, release.TagName)
	fmt.Println("Downloading and verifying...")

	pendingPath := update.PendingBinaryPath()
	if err := client.DownloadAndVerify(release, pendingPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error downloading update: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Checksum verified.")
	fmt.Println("Installing update...")

	if err := update.ApplyUpdate(pendingPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error installing update: %v\n", err)
		os.Exit(1)
	}

	if state, stateErr := update.LoadState(Version); stateErr == nil {
		state.RecordUpdate(release.TagName)
		_ = state.Save()
	}

	fmt.Printf("\nSuccessfully updated to %s\n", release.TagName)
	fmt.Println("Previous version saved for rollback.")
	fmt.Println("\nRun 'vecimport version' to verify.")
}

func rollbackUpdate() {
	if !update.HasPreviousVersion() {
		fmt.Fprintln(os.Stderr, "No previous version available for rollback.")
		os.Exit(1)
	}

	fmt.Println("Rolling back to previous version...")

	if err := update.Rollback(); err != nil {
		fmt.Fprintf(os.Stderr, "Error rolling back: %v\n", err)
		os.Exit(1)
	}

	if state, err := update.LoadState(Version); err == nil && state.PreviousVersion != "" {
		state.CurrentVersion, state.PreviousVersion = state.PreviousVersion, state.CurrentVersion
		_ = state.Save()
	}

	fmt.Println("\nRollback complete.")
	fmt.Println("Run 'vecimport version' to verify.")
}

func showUpdateStatus() {
	state, err := update.LoadState(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading update state: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("vecimport Update Status")
	fmt.Println("-----------------------")
	fmt.Printf("Current version:  %s\n", Version)

	if state.PreviousVersion != "" {
		fmt.Printf("Previous version: %s\n", state.PreviousVersion)
	} else {
		fmt.Printf("Previous version: (none)\n")
	}

	if !state.LastCheck.IsZero() {
		fmt.Printf("Last check:       %s\n", state.LastCheck.Format(time.RFC3339))
	} else {
		fmt.Printf("Last check:       (never)\n")
	}
	if !state.LastUpdate.IsZero() {
		fmt.Printf("Last update:      %s\n", state.LastUpdate.Format(time.RFC3339))
	}
	fmt.Printf("Auto-check:       %v\n", state.AutoCheck)

	fmt.Println("\nChecking for updates...")
	client := update.NewClient(Version)
	release, err := client.CheckForUpdate()
	switch {
	case err != nil:
		fmt.Printf("Update check:     failed (%v)\n", err)
	case release == nil:
		fmt.Println("Update check:     up to date")
	default:
		fmt.Printf("Update available: %s\n", release.TagName)
		fmt.Println("\nRun 'vecimport update install' to update.")
	}
}

func setAutoCheck(enabled bool) {
	state, err := update.LoadState(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading update state: %v\n", err)
		os.Exit(1)
	}

	state.AutoCheck = enabled
	if err := state.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving update state: %v\n", err)
		os.Exit(1)
	}

	if enabled {
		fmt.Println("Background update checks enabled.")
		fmt.Println("Updates are checked once per day when the daemon starts.")
	} else {
		fmt.Println("Background update checks disabled.")
		fmt.Println("Run 'vecimport update check' to check manually.")
	}
}

// checkForUpdateInBackground runs a non-blocking update check from the
// daemon. It only prints a notice; it never installs.
func checkForUpdateInBackground() {
	state, err := update.LoadState(Version)
	if err != nil || !state.ShouldCheck() {
		return
	}

	client := update.NewClient(Version)
	release, err := client.CheckForUpdate()

	tag := ""
	if release != nil {
		tag = release.TagName
	}
	state.RecordCheck(tag)
	_ = state.Save()

	if err != nil || release == nil {
		return
	}
	fmt.Printf("   - Update available: %s (run 'vecimport update install')\n", release.TagName)
}
