package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/app"
)

var generateSaveAs string

var generateCmd = &cobra.Command{
	Use:   "generate <description>",
	Short: "Draft a strategy program from a plain-language description",
	Long: `Ask the configured LLM provider for a strategy program. The returned code is
validated before it is printed, and optionally saved to the library with --save.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateSaveAs, "save", "", "Save the result under this name")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	return withApp(func(a *app.App, log *zap.Logger) error {
		ctx := cmd.Context()
		res, err := a.Generator().Generate(ctx, description)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "// %s (via %s)\n\n%s\n", res.Explanation, res.Provider, res.Code)

		if generateSaveAs == "" {
			return nil
		}
		key, err := a.Library().Save(ctx, generateSaveAs, description, res.Code)
		if err != nil {
			return err
		}
		log.Info("generated strategy saved", zap.String("key", key))
		fmt.Fprintf(out, "\nsaved as %s\n", key)
		return nil
	})
}
