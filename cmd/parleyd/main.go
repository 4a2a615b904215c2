package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/cli"
	"github.com/parleyhq/parley/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "parleyd",
		Short: "Parley daemon and CLI",
		Long:  "Parley daemon for running the API server, the document pipeline, and synthesis tooling",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.ReprocessCmd())
	rootCmd.AddCommand(admin.SynthesizeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
