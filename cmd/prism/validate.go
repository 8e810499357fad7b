package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newthinker/prism/internal/strategy"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a strategy program without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading program: %w", err)
		}
		if err := strategy.Validate(strategy.Program{Name: args[0], Source: string(src)}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
