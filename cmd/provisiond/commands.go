package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/wifiprov/config"
	"github.com/user/wifiprov/logger"
	"github.com/user/wifiprov/proto"
)

const (
	exeName = "provisiond"
	version = "0.3.0"
)

var (
	configPath string
	logLevel   string
	backend    string

	cfg config.Config
)

func Commands() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           exeName,
		Short:         exeName + " provisions Wi-Fi credentials over Bluetooth LE",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}
			if cmd.Flags().Changed("loglevel") {
				cfg.LogLevel = logLevel
			}
			logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
			return cfg.Validate()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(),
		"configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "loglevel", "l", "info",
		"log level to use (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", config.BackendSim,
		"host stack and network backend (sim, bluez)")

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the " + exeName + " version number",
		Example: "  " + exeName + " version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s (protocol %d)\n", exeName, version, proto.ProtocolVersion)
		},
	}
	rootCmd.AddCommand(versCmd)

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(connectAnyCmd())
	rootCmd.AddCommand(advCmd())
	rootCmd.AddCommand(decodeCmd())

	return rootCmd
}
