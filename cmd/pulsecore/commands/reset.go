package commands

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/pulsecore/internal/app"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "factory-reset",
	Short: "Erase all settings, themes and window positions",
	Long: `Erase everything PulseCore has stored and return every window to its
defaults. Running windows follow immediately.`,
	RunE: runReset,
}

var resetYes bool

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "reset without asking")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	win, done, err := openCLIWindow(ctx)
	if err != nil {
		return err
	}
	defer done()

	title, message := app.ResetPrompt(win.Settings.Get().Language)
	ok, err := defaultConfirmer().Confirm(title, message, resetYes)
	if err != nil || !ok {
		return err
	}
	if err := win.FactoryReset(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Factory reset complete")
	return nil
}
