package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/corey/hilite/internal/app"
	"github.com/corey/hilite/internal/domain/dispatch"
	"github.com/corey/hilite/internal/domain/token"
)

var (
	tokLang    string
	tokRaw     bool
	tokCompact bool
)

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize [file]",
	Short: "Print the token tree of a file or stdin as JSON",
	Long:  "Prints the worker reply for the input: the wire-encoded token tree and whether the guard aborted.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTokenize,
}

func init() {
	f := tokenizeCmd.Flags()
	f.StringVarP(&tokLang, "lang", "l", "", "Grammar to use (default: by extension, then by detection)")
	f.BoolVar(&tokRaw, "raw", false, "Input is already HTML-escaped")
	f.BoolVar(&tokCompact, "compact", false, "Single-line JSON")
}

func runTokenize(cmd *cobra.Command, args []string) error {
	file := ""
	var data []byte
	var err error
	if len(args) == 1 {
		file = args[0]
		data, err = os.ReadFile(file)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	engine, err := app.NewEngine(loadConfig())
	if err != nil {
		return err
	}

	code := string(data)
	lang := engine.ResolveLanguage(tokLang, file, code)
	if !tokRaw {
		code = app.Escape(code)
	}
	res := engine.Tokenize(code, lang)
	log.WithField("language", lang).Debug("Tokenized")

	reply := dispatch.WorkerReply{Tree: token.Encode(res.Stream), Aborted: res.Aborted}
	var out []byte
	if tokCompact {
		out, err = json.Marshal(reply)
	} else {
		out, err = json.MarshalIndent(reply, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
