package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corey/hilite/internal/adapters/socket"
	"github.com/corey/hilite/internal/app"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long:  "Shows the resolved configuration, project paths and daemon status. No daemon required.",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	paths := app.NewPaths(cfg.ProjectRoot)

	client := socket.NewClient(paths.Socket)
	daemonRunning := client.Ping()
	daemonStatus := fmt.Sprintf("%s✗ not running%s", colorYellow, colorReset)
	if daemonRunning {
		daemonStatus = fmt.Sprintf("%s✓ running%s", colorGreen, colorReset)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "(none)"
	}
	jobs := "one per CPU"
	if cfg.Jobs > 0 {
		jobs = fmt.Sprintf("%d", cfg.Jobs)
	}

	fmt.Printf("%s⚡ hilite config%s\n", colorBold, colorReset)
	fmt.Printf("  Root:           %s\n", cfg.ProjectRoot)
	fmt.Printf("  Config file:    %s\n", configFile)
	fmt.Printf("  Grammars:       %s\n", cfg.GrammarDir)
	fmt.Printf("  Missing rule:   %s\n", cfg.MissingRule)
	fmt.Printf("  Match timeout:  %s\n", cfg.MatchTimeout)
	fmt.Printf("  Cache:          %t (%s, ttl %s)\n", cfg.Cache, cfg.DBPath, cfg.CacheTTL)
	fmt.Printf("  Worker timeout: %s\n", cfg.WorkerTimeout)
	fmt.Printf("  Jobs:           %s\n", jobs)
	fmt.Printf("  Socket:         %s\n", paths.Socket)
	fmt.Printf("  Daemon:         %s\n", daemonStatus)

	if daemonRunning {
		if portData, err := os.ReadFile(paths.PortFile); err == nil {
			fmt.Printf("  Playground:     http://localhost:%s\n", strings.TrimSpace(string(portData)))
		}
	}

	return nil
}
