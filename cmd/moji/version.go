package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/tui"
)

var (
	showBanner bool
	configOut  string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		if showBanner {
			tui.ShowBanner(Version)
		}
		fmt.Printf("moji %s\n", Version)
		fmt.Println("Image search grid")
		fmt.Println("github.com/pders01/moji")
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the default configuration",
	Run: func(cmd *cobra.Command, args []string) {
		path := configOut
		if path == "" {
			home, _ := os.UserHomeDir()
			path = filepath.Join(home, ".config", "moji", "config.toml")
		}
		if err := config.GenerateDefaultConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default configuration at: %s\n", path)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&showBanner, "banner", false, "Print the logo banner")
	configGenCmd.Flags().StringVarP(&configOut, "output", "o", "", "Destination (default ~/.config/moji/config.toml)")
	configCmd.AddCommand(configGenCmd)
	rootCmd.AddCommand(versionCmd, configCmd)
}
