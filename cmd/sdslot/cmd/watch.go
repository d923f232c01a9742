package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal/periph"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Bring up the board on host GPIO and report media changes until interrupted",
	Long: `Bring up every board slot on the host's GPIO lines (periph.io pin names) and
report card insertion, removal and write protection until SIGINT or SIGTERM.

Each slot's image path (an image file or a block device node) backs its
controller; slots without an image have no controller interface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		cfg, err := loadBoard()
		if err != nil {
			return err
		}

		gpio, err := periph.New()
		if err != nil {
			return err
		}
		defer gpio.Close()

		images := make(map[int]string, len(cfg.Slots))
		for _, sc := range cfg.Slots {
			if sc.Image != "" {
				images[sc.Slot] = sc.Image
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := newRig(ctx, cfg, gpio, afero.NewOsFs(), images, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		var wg sync.WaitGroup
		queues, cancel := context.WithCancel(context.Background())
		r.runQueues(queues, &wg)
		defer func() {
			cancel()
			wg.Wait()
		}()

		if err := bringUpAll(r); err != nil {
			return err
		}
		defer r.disarm()

		pkg.LogInfo(pkg.ComponentCLI, "watching", "board", cfg.Name, "slots", len(r.slots))
		r.status()

		<-ctx.Done()
		r.status()
		return nil
	},
}

func init() {
	viper.AutomaticEnv()

	rootCmd.AddCommand(watchCmd)
}
