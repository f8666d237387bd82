package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corey/hilite/internal/adapters/socket"
	"github.com/corey/hilite/internal/app"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon status",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := socket.NewClient(app.NewPaths(projectRoot()).Socket)

	if !client.Ping() {
		fmt.Println("⚡ hilite daemon is not running")
		return nil
	}

	health, err := client.Health()
	if err != nil {
		return err
	}

	fmt.Print(formatHealth(health))
	return nil
}
