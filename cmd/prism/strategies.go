package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/app"
)

var strategiesCmd = &cobra.Command{
	Use:     "strategies",
	Aliases: []string{"strategy"},
	Short:   "Manage the strategy library",
}

var strategiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates and custom strategies",
	Args:  cobra.NoArgs,
	RunE:  runStrategiesList,
}

var strategiesShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print a strategy's program",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategiesShow,
}

var strategiesSaveCmd = &cobra.Command{
	Use:   "save <name> <file>",
	Short: "Validate a program file and store it as a custom strategy",
	Args:  cobra.ExactArgs(2),
	RunE:  runStrategiesSave,
}

var strategiesDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a custom strategy",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategiesDelete,
}

var saveDescription string

func init() {
	rootCmd.AddCommand(strategiesCmd)
	strategiesCmd.AddCommand(strategiesListCmd)
	strategiesCmd.AddCommand(strategiesShowCmd)
	strategiesCmd.AddCommand(strategiesSaveCmd)
	strategiesCmd.AddCommand(strategiesDeleteCmd)

	strategiesSaveCmd.Flags().StringVar(&saveDescription, "description", "", "Strategy description")
}

func runStrategiesList(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App, log *zap.Logger) error {
		entries, err := a.Library().List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tKIND\tDESCRIPTION\t")
		fmt.Fprintln(w, "---\t----\t----\t-----------\t")
		for _, e := range entries {
			kind := "template"
			if e.IsCustom {
				kind = "custom"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", e.Key, e.Name, kind, e.Description)
		}
		return w.Flush()
	})
}

func runStrategiesShow(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App, log *zap.Logger) error {
		e, err := a.Library().Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s (%s)\n# %s\n\n", e.Name, e.Key, e.Description)
		fmt.Fprintln(out, e.Code)
		return nil
	})
}

func runStrategiesSave(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading program: %w", err)
	}
	return withApp(func(a *app.App, log *zap.Logger) error {
		key, err := a.Library().Save(cmd.Context(), args[0], saveDescription, string(src))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved as %s\n", key)
		return nil
	})
}

func runStrategiesDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App, log *zap.Logger) error {
		if err := a.Library().Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	})
}
