package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/pkg/board"
	"github.com/ardnew/softsd/sdhc"
	"github.com/ardnew/softsd/slot/hal"
	"github.com/ardnew/softsd/slot/hal/sim"
)

const (
	imageFlag        = "image"
	presentFlag      = "present"
	writeProtectFlag = "write-protect"
	cardBlocksFlag   = "card-blocks"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Bring up the board on simulated lines and drive them from stdin",
	Long: `Bring up every board slot on a simulated GPIO bank and read commands from
stdin, one per line:

  insert            drive card-detect low (card inserted)
  remove            release card-detect to its pull-up (card removed)
  wp on|off         set the write-protect line sampled on the next insertion
  glitch            fire the card-detect handler without a level change
  slot <n>          select the slot the commands above act on
  status            print slot and device state
  read <lba>        read one block from the selected slot's device
  write <lba> <txt> write txt (zero padded) to one block
  quit              exit

Cards live in memory unless --image names an image file for the first slot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		cfg, err := loadBoard()
		if err != nil {
			return err
		}

		fs, images, err := simulatedImages(cfg, viper.GetString(imageFlag), viper.GetInt64(cardBlocksFlag))
		if err != nil {
			return err
		}

		bank := sim.NewBank(cfg.Name)
		for _, sc := range cfg.Slots {
			setInitialLevels(bank, sc, viper.GetBool(presentFlag), viper.GetBool(writeProtectFlag))
		}

		r, err := newRig(cmd.Context(), cfg, bank, fs, images, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := bringUpAll(r); err != nil {
			return err
		}
		defer r.disarm()
		r.flush()

		s := &session{rig: r, bank: bank}
		return s.run(cmd.InOrStdin())
	},
}

// simulatedImages returns the card image filesystem and per-slot paths.
// With image set the first slot uses that file on the OS filesystem and
// other slots use their configured image; otherwise every slot gets an
// in-memory card of blocks blocks.
func simulatedImages(cfg board.Config, image string, blocks int64) (afero.Fs, map[int]string, error) {
	images := make(map[int]string, len(cfg.Slots))

	if image != "" {
		for i, sc := range cfg.Slots {
			if i == 0 {
				images[sc.Slot] = image
			} else if sc.Image != "" {
				images[sc.Slot] = sc.Image
			}
		}
		return afero.NewOsFs(), images, nil
	}

	if blocks <= 0 {
		return nil, nil, fmt.Errorf("--%s %d: %w", cardBlocksFlag, blocks, pkg.ErrInvalidParameter)
	}
	fs := afero.NewMemMapFs()
	for _, sc := range cfg.Slots {
		path := sc.Image
		if path == "" {
			path = fmt.Sprintf("mmcsd%d.img", sc.Minor)
		}
		if err := sdhc.CreateImage(fs, path, blocks*int64(sc.BlockSize)); err != nil {
			return nil, nil, err
		}
		images[sc.Slot] = path
	}
	return fs, images, nil
}

func setInitialLevels(bank *sim.Bank, sc board.SlotConfig, present, protected bool) {
	if present {
		bank.Drive(sc.CardDetect, hal.Low)
	}
	bank.Drive(sc.WriteProtect, hal.Level(protected))
}

// session executes simulate commands against a rig.
type session struct {
	rig     *rig
	bank    *sim.Bank
	current int // Index into rig.slots
}

// run executes commands from in until quit or end of input.
func (s *session) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		quit, err := s.exec(scanner.Text())
		s.rig.flush()
		if err != nil {
			s.rig.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

// exec executes one command line.
func (s *session) exec(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return false, nil
	}

	sc := s.rig.slots[s.current].Config()
	switch name, args := fields[0], fields[1:]; name {
	case "quit", "exit":
		return true, nil

	case "insert":
		s.bank.Drive(sc.CardDetect, hal.Low)

	case "remove":
		s.bank.Release(sc.CardDetect)

	case "glitch":
		if !s.bank.Glitch(sc.CardDetect) {
			return false, fmt.Errorf("glitch: slot %d not armed: %w", sc.Slot, pkg.ErrInvalidState)
		}

	case "wp":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return false, fmt.Errorf("usage: wp on|off: %w", pkg.ErrInvalidParameter)
		}
		s.bank.Drive(sc.WriteProtect, hal.Level(args[0] == "on"))

	case "slot":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: slot <n>: %w", pkg.ErrInvalidParameter)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("slot %q: %w", args[0], pkg.ErrInvalidParameter)
		}
		for i, sl := range s.rig.slots {
			if sl.Config().Slot == n {
				s.current = i
				return false, nil
			}
		}
		return false, fmt.Errorf("slot %d: %w", n, pkg.ErrInvalidSlot)

	case "status":
		s.rig.status()

	case "read":
		return false, s.read(sc, args)

	case "write":
		return false, s.write(sc, args)

	default:
		return false, fmt.Errorf("unknown command %q: %w", name, pkg.ErrInvalidParameter)
	}
	return false, nil
}

func (s *session) read(sc board.SlotConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: read <lba>: %w", pkg.ErrInvalidParameter)
	}
	lba, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("lba %q: %w", args[0], pkg.ErrInvalidParameter)
	}
	d, ok := s.rig.registry.Device(sc.Minor)
	if !ok {
		return pkg.ErrNotBound
	}

	buf := make([]byte, d.BlockSize())
	if _, err := d.Read(lba, 1, buf); err != nil {
		return err
	}
	s.rig.printf("%s[%d]: %q\n", d.Name(), lba, strings.TrimRight(string(buf), "\x00"))
	return nil
}

func (s *session) write(sc board.SlotConfig, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write <lba> <text>: %w", pkg.ErrInvalidParameter)
	}
	lba, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("lba %q: %w", args[0], pkg.ErrInvalidParameter)
	}
	d, ok := s.rig.registry.Device(sc.Minor)
	if !ok {
		return pkg.ErrNotBound
	}

	buf := make([]byte, d.BlockSize())
	text := strings.Join(args[1:], " ")
	if len(text) > len(buf) {
		return fmt.Errorf("%d bytes exceed block size %d: %w", len(text), len(buf), pkg.ErrOutOfRange)
	}
	copy(buf, text)
	if _, err := d.Write(lba, 1, buf); err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		return err
	}
	s.rig.printf("%s[%d]: wrote %d bytes\n", d.Name(), lba, len(text))
	return nil
}

func init() {
	viper.AutomaticEnv()

	simulateCmd.PersistentFlags().StringP(imageFlag, "i", "", "Card image file for the first slot (default: in-memory card)")
	simulateCmd.PersistentFlags().Bool(presentFlag, false, "Card inserted at bring-up")
	simulateCmd.PersistentFlags().Bool(writeProtectFlag, false, "Write-protect asserted at bring-up")
	simulateCmd.PersistentFlags().Int64(cardBlocksFlag, 2048, "Blocks per in-memory card")

	rootCmd.AddCommand(simulateCmd)
}
