package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/8agana/unified-intelligence/cmd/ui-cli/ui"
)

var scriptReloadCmd = &cobra.Command{
	Use:   "script-reload",
	Short: "Reload the Lua scripts and warm their digest cache",
	Long: `Re-runs SCRIPT LOAD for the fixed set of server-side scripts
against the configured store, the same reload cmd/ui-server performs at
startup. Useful after a store restart that flushed the script cache
without restarting the server.`,
	RunE: runScriptReload,
}

func init() {
	rootCmd.AddCommand(scriptReloadCmd)
}

func runScriptReload(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ui.Init(noColor)
	s := ui.NewSpinner("loading scripts")
	s.Start()

	d, err := bootstrap(ctx)
	s.Stop()
	if err != nil {
		return fmt.Errorf("reload scripts: %w", err)
	}
	defer d.Close()

	ui.Success("scripts reloaded and digest cache warmed")
	return nil
}
