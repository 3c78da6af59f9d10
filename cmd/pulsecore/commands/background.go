package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/bryanchriswhite/pulsecore/internal/theme"
	"github.com/spf13/cobra"
)

var backgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Manage the overlay background",
}

var backgroundSetCmd = &cobra.Command{
	Use:   "set IMAGE",
	Short: "Set the overlay background from an image file",
	Long: `Set the overlay background from a JPEG, PNG, GIF or WebP image.

The image is cropped to the overlay's aspect ratio around its center.`,
	Example: `  # Plain background
  pulsecore background set wallpaper.png

  # Liquid glass, saved as a theme
  pulsecore background set wallpaper.png --effect liquidGlass --strength 70 --save`,
	Args: cobra.ExactArgs(1),
	RunE: runBackgroundSet,
}

var backgroundClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the overlay background",
	RunE:  runBackgroundClear,
}

var (
	bgBlur     float64
	bgStrength float64
	bgEffect   string
	bgSave     bool
	bgWidth    float64
	bgHeight   float64
)

func init() {
	rootCmd.AddCommand(backgroundCmd)
	backgroundCmd.AddCommand(backgroundSetCmd)
	backgroundCmd.AddCommand(backgroundClearCmd)

	backgroundSetCmd.Flags().Float64Var(&bgBlur, "blur", 0, "blur radius in pixels (0-40)")
	backgroundSetCmd.Flags().Float64Var(&bgStrength, "strength", 0, "liquid glass strength (0-100)")
	backgroundSetCmd.Flags().StringVar(&bgEffect, "effect", string(appearance.Gaussian), "effect (gaussian or liquidGlass)")
	backgroundSetCmd.Flags().BoolVar(&bgSave, "save", false, "also save as a theme")
	backgroundSetCmd.Flags().Float64Var(&bgWidth, "width", 0, "overlay width used for the crop aspect")
	backgroundSetCmd.Flags().Float64Var(&bgHeight, "height", 0, "overlay height used for the crop aspect")
}

func runBackgroundSet(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	ctx := context.Background()
	win, done, err := openCLIWindow(ctx)
	if err != nil {
		return err
	}
	defer done()

	sess := win.Session
	sess.Open(bgWidth, bgHeight)
	defer sess.Close()
	if err := sess.Load(bytes.NewReader(data), http.DetectContentType(data), 960, 600); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("blur") {
		sess.SetBlurPx(bgBlur)
	}
	if flags.Changed("strength") {
		sess.SetGlassStrength(bgStrength)
	}
	if flags.Changed("effect") {
		sess.SetEffect(appearance.ParseEffect(bgEffect))
	}

	if bgSave {
		t, ok := sess.ApplyAndSave(ctx)
		if !ok {
			return theme.ErrSlotsFull
		}
		fmt.Printf("✓ Background applied and saved as theme %s (%s)\n", t.Name, t.ID)
		return nil
	}
	if !sess.Apply(ctx) {
		return errors.New("background could not be applied")
	}
	fmt.Println("✓ Background applied")
	return nil
}

func runBackgroundClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	win, done, err := openCLIWindow(ctx)
	if err != nil {
		return err
	}
	defer done()

	win.Prefs.Update(ctx, func(p *prefs.Overlay) { p.ClearBackground() })
	fmt.Println("✓ Background cleared")
	return nil
}
