package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/bryanchriswhite/pulsecore/internal/theme"
	"github.com/spf13/cobra"
)

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Manage saved background themes",
}

var themeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved themes",
	Example: `  pulsecore theme list
  pulsecore theme list --format json`,
	RunE: runThemeList,
}

var themeDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a saved theme",
	Long: `Delete a saved theme. Deleting the applied theme also clears the
overlay background.`,
	Args: cobra.ExactArgs(1),
	RunE: runThemeDelete,
}

var themeRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a saved theme",
	Long:  "Rename a saved theme. Names are 1 to 3 characters.",
	Args:  cobra.ExactArgs(2),
	RunE:  runThemeRename,
}

var themeApplyCmd = &cobra.Command{
	Use:   "apply ID",
	Short: "Apply a saved theme to the overlay",
	Args:  cobra.ExactArgs(1),
	RunE:  runThemeApply,
}

var themeListFormat string

type deleteText struct{ title, message string }

var deletePrompt = map[settings.Language]deleteText{
	settings.ZhCN: {"删除主题", "确定删除主题「%s」吗？"},
	settings.EnUS: {"Delete theme", "Delete theme %q?"},
}

func init() {
	rootCmd.AddCommand(themeCmd)
	themeCmd.AddCommand(themeListCmd)
	themeCmd.AddCommand(themeDeleteCmd)
	themeCmd.AddCommand(themeRenameCmd)
	themeCmd.AddCommand(themeApplyCmd)

	themeListCmd.Flags().StringVarP(&themeListFormat, "format", "f", "table", "output format (table or json)")
	themeDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "delete without asking")
}

type themeRow struct {
	theme.Theme
	Applied bool `json:"applied"`
}

func runThemeList(cmd *cobra.Command, args []string) error {
	win, done, err := openCLIWindow(context.Background())
	if err != nil {
		return err
	}
	defer done()

	themes := win.Themes.List()
	rows := make([]themeRow, 0, len(themes))
	for _, t := range themes {
		rows = append(rows, themeRow{Theme: t, Applied: win.Themes.IsApplied(t)})
	}

	switch themeListFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "table":
		if len(rows) == 0 {
			fmt.Println("No saved themes")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEFFECT\tBLUR\tSTRENGTH\tAPPLIED")
		fmt.Fprintln(w, "--\t----\t------\t----\t--------\t-------")
		for _, r := range rows {
			applied := ""
			if r.Applied {
				applied = "✓"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Name, r.Effect, r.BlurPx, r.GlassStrength, applied)
		}
		w.Flush()
		fmt.Printf("\nSlots used: %d/%d\n", len(rows), theme.MaxThemes)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", themeListFormat)
	}
}

func runThemeDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	win, done, err := openCLIWindow(ctx)
	if err != nil {
		return err
	}
	defer done()

	t, err := win.Themes.RequestDelete(args[0])
	if err != nil {
		return err
	}
	text := deletePrompt[win.Settings.Get().Language]
	ok, err := defaultConfirmer().Confirm(text.title, fmt.Sprintf(text.message, t.Name), assumeYes)
	if err != nil || !ok {
		win.Themes.CancelDelete()
		return err
	}
	if err := win.Themes.ConfirmDelete(ctx); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted theme %s\n", t.Name)
	return nil
}

func runThemeRename(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	win, done, err := openCLIWindow(ctx)
	if err != nil {
		return err
	}
	defer done()

	for _, t := range win.Themes.List() {
		if t.ID != args[0] {
			continue
		}
		updated, err := win.Themes.Edit(ctx, t.ID, theme.EditRequest{
			Name:          args[1],
			BlurPx:        float64(appearance.ClampPreviewBlurPx(float64(t.BlurPx))),
			Effect:        t.Effect,
			GlassStrength: float64(t.GlassStrength),
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Renamed theme to %s\n", updated.Name)
		return nil
	}
	return fmt.Errorf("%w: %s", theme.ErrUnknownTheme, args[0])
}

func runThemeApply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	win, done, err := openCLIWindow(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := win.Themes.Apply(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("✓ Theme applied")
	return nil
}
