package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print the resolved board configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadBoard()
		if err != nil {
			return err
		}
		return cfg.Encode(cmd.OutOrStdout())
	},
}

func init() {
	viper.AutomaticEnv()

	rootCmd.AddCommand(boardCmd)
}
