package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/pkg/board"
)

const (
	boardFlag    = "board"
	presetFlag   = "preset"
	logLevelFlag = "log-level"
	jsonFlag     = "json"
)

var rootCmd = &cobra.Command{
	Use:   "sdslot",
	Short: "Removable card slot bring-up and media tracking",
	Long: `sdslot (sdslot) brings up the removable card slots of a board, tracks card
insertion and removal on the card-detect line and exposes inserted cards as
/dev/mmcsd block devices.

Boards are described by a preset or a TOML board file. Every flag can also be
set through the environment, for example SDSLOT_LOG_LEVEL=debug.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix("sdslot")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		level, err := pkg.ParseLogLevel(viper.GetString(logLevelFlag))
		if err != nil {
			return err
		}
		pkg.SetLogLevel(level)
		if viper.GetBool(jsonFlag) {
			pkg.SetLogFormat(pkg.LogFormatJSON)
		} else {
			pkg.SetLogFormat(pkg.LogFormatText)
		}
		return nil
	},
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return exitCode(err)
	}
	return 0
}

// exitCode maps err to a POSIX status, never 0 for a non-nil error.
func exitCode(err error) int {
	if code := int(pkg.Errno(err)); code != 0 {
		return code
	}
	return 1
}

// loadBoard resolves the board from --board, falling back to --preset.
func loadBoard() (board.Config, error) {
	if path := viper.GetString(boardFlag); path != "" {
		return board.Load(path)
	}
	cfg, err := board.Preset(viper.GetString(presetFlag))
	if err != nil {
		return board.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return board.Config{}, err
	}
	return cfg, nil
}

// bringUpAll brings up every slot. It fails only if no slot was armed;
// individual failures are logged and joined into the returned error.
func bringUpAll(r *rig) error {
	var errs []error
	armed := 0
	for _, s := range r.slots {
		if err := s.BringUp(r.ctx); err != nil {
			pkg.LogError(pkg.ComponentCLI, "slot bring-up failed",
				"slot", s.Config().Slot,
				"error", err)
			errs = append(errs, err)
			continue
		}
		armed++
	}
	if armed == 0 {
		return errors.Join(errs...)
	}
	return nil
}

func init() {
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().StringP(boardFlag, "b", "", "Board file (TOML); overrides --preset")
	rootCmd.PersistentFlags().StringP(presetFlag, "p", board.NameFreedomK64F, "Board preset ("+strings.Join(board.Presets(), ", ")+")")
	rootCmd.PersistentFlags().StringP(logLevelFlag, "l", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool(jsonFlag, false, "Write logs as JSON")
}
