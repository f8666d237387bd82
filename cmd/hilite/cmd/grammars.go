package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corey/hilite/internal/app"
	"github.com/corey/hilite/internal/domain/grammar"
)

var grammarsCmd = &cobra.Command{
	Use:   "grammars",
	Short: "Inspect registered grammars",
}

var grammarsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bundled and user grammars",
	Args:  cobra.NoArgs,
	RunE:  runGrammarsList,
}

var grammarsShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the rules of one grammar in claim order",
	Args:  cobra.ExactArgs(1),
	RunE:  runGrammarsShow,
}

func init() {
	grammarsCmd.AddCommand(grammarsListCmd)
	grammarsCmd.AddCommand(grammarsShowCmd)
}

func runGrammarsList(cmd *cobra.Command, args []string) error {
	engine, err := app.NewEngine(loadConfig())
	if err != nil {
		return err
	}
	result := app.GrammarList(engine)
	fmt.Print(formatGrammars(&result))
	return nil
}

func runGrammarsShow(cmd *cobra.Command, args []string) error {
	engine, err := app.NewEngine(loadConfig())
	if err != nil {
		return err
	}
	name := args[0]
	g, ok := engine.Registry().Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", grammar.ErrUnknownGrammar, name)
	}
	lang, _ := engine.Registry().Language(name)
	fmt.Print(formatGrammar(lang, g))
	return nil
}
