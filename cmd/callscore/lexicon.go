package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLexiconCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lexicon",
		Short: "Show the languages covered by the phrase lexicon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lex, err := root.loadLexicon()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %d\n", lex.Version())
			fmt.Fprintf(out, "default: %s\n", lex.DefaultLanguage())
			for _, lang := range lex.Languages() {
				fmt.Fprintf(out, "  %s\n", lang)
			}
			return nil
		},
	}
}
