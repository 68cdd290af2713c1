package cmd

import (
	"log"

	"github.com/The-Valley-Discord/blimp/blimp"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the BLIMP bot and (optionally) the status API",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bot, err := blimp.New(cfg)
		if err != nil {
			log.Fatalf("error creating blimp: %s", err.Error())
		}

		if err = bot.Run(ctx); err != nil {
			log.Fatalf("error running blimp: %s", err.Error())
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
