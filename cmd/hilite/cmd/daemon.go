package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corey/hilite/internal/adapters/socket"
	"github.com/corey/hilite/internal/app"
	"github.com/corey/hilite/internal/logging"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the hilite daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	paths := app.NewPaths(cfg.ProjectRoot)

	// Check if already running
	client := socket.NewClient(paths.Socket)
	if client.Ping() {
		fmt.Println("⚡ daemon already running")
		return nil
	}

	a, err := app.New(cfg)
	if err != nil {
		if isDBLockError(err) {
			return fmt.Errorf("%s", diagnoseDBLock(paths.Socket))
		}
		return fmt.Errorf("init: %w", err)
	}

	logFile, err := os.OpenFile(paths.DaemonLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		logging.SetOutput(io.MultiWriter(os.Stderr, logFile))
		defer logFile.Close()
	}

	if err := a.Start(); err != nil {
		a.Watcher.Stop()
		if a.Store != nil {
			a.Store.Close()
		}
		return err
	}

	fmt.Printf("⚡ hilite daemon started at %s\n", paths.Socket)
	if a.WebServer.Port() != 0 {
		fmt.Printf("⚡ playground at %s\n", a.WebServer.URL())
	}

	// Wait for a signal or a remote shutdown request
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-a.Server.ShutdownCh():
	}

	fmt.Println("\n⚡ shutting down...")
	return a.Stop()
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	client := socket.NewClient(app.NewPaths(projectRoot()).Socket)

	if !client.Ping() {
		fmt.Println("⚡ daemon is not running")
		return nil
	}

	if err := client.Shutdown(); err != nil {
		return err
	}

	fmt.Println("⚡ daemon stopped")
	return nil
}
