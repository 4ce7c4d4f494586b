package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/commentscope/internal/config"
	"github.com/sells-group/commentscope/internal/pipeline"
)

var askUser string

var askCmd = &cobra.Command{
	Use:   "ask <session> <question>",
	Short: "Ask a follow-up question in a saved session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, config.ModeAnalyze)
		if err != nil {
			return err
		}
		defer env.Close()

		name, question := args[0], args[1]
		b, err := env.Store.Load(ctx, askUser, name)
		if err != nil {
			return err
		}
		sc, err := env.Pipeline.Restore(askUser, name, env.WorkDir, b)
		if err != nil {
			return err
		}
		defer sc.Cleanup() //nolint:errcheck

		reply, err := env.Pipeline.FollowUp(ctx, sc, question)
		printReply(cmd.OutOrStdout(), reply, err)
		if err != nil {
			return err
		}
		_, err = pipeline.Save(ctx, env.Store, sc)
		return err
	},
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", defaultUser(), "user the session belongs to")
	rootCmd.AddCommand(askCmd)
}
