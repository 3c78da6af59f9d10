package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bryanchriswhite/pulsecore/internal/settings"
	"github.com/bryanchriswhite/pulsecore/internal/transfer"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [PATH]",
	Short: "Export settings, themes and window positions",
	Long: `Write the full configuration to a JSON file.

Without PATH the file is written to the current directory under a
timestamped name.`,
	Example: `  pulsecore export
  pulsecore export ~/backup/pulsecore.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a configuration file",
	Long: `Import a file written by export.

The file is validated first and nothing changes until the import is
confirmed. Fields missing from the file are left alone; fields of the wrong
type are skipped and listed.`,
	Example: `  pulsecore import pulsecore-config.json
  pulsecore import --yes pulsecore-config.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var assumeYes bool

type importText struct{ title, message string }

var importPrompt = map[settings.Language]importText{
	settings.ZhCN: {"导入配置", "导入将覆盖当前的设置与主题。是否继续？"},
	settings.EnUS: {"Import configuration", "Importing will overwrite the current settings and themes. Continue?"},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "apply without asking")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	win, done, err := openCLIWindow(ctx)
	if err != nil {
		return err
	}
	defer done()

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		doc, err := transfer.Export(ctx, win.Stores(), time.Now())
		if err != nil {
			return err
		}
		path = transfer.Filename(doc)
	}
	if _, err := transfer.WriteFile(ctx, win.Stores(), path); err != nil {
		return err
	}
	fmt.Printf("✓ Exported to %s\n", path)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
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

	if err := win.Importer.Stage(data); err != nil {
		var verr *transfer.ValidationError
		if errors.As(err, &verr) {
			return errors.New(verr.Error())
		}
		return err
	}

	text := importPrompt[win.Settings.Get().Language]
	ok, err := defaultConfirmer().Confirm(text.title, text.message, assumeYes)
	if err != nil || !ok {
		win.Importer.Cancel()
		if err != nil {
			return err
		}
		fmt.Println("Import cancelled")
		return nil
	}

	report, err := win.Importer.Confirm(ctx)
	if err != nil {
		return err
	}
	for _, d := range report.Skipped {
		fmt.Fprintf(os.Stderr, "  skipped %s\n", d)
	}
	if report.RestartedTaskbar {
		fmt.Println("  taskbar window restarted")
	}
	fmt.Printf("✓ Imported %s\n", args[0])
	return nil
}
