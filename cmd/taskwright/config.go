package main

import (
	"fmt"

	"github.com/mark3labs/taskwright/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and write taskwright configuration",
}

var configInitFlags struct {
	global bool
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current effective configuration to a config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		if configInitFlags.global {
			if err := config.WriteGlobal(cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", config.GlobalPath())
			return nil
		}

		if err := config.WriteProject(cfg); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", config.ProjectPath())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration after all precedence rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitFlags.global, "global", false, "Write to the global config location")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
