package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/config"
	"github.com/sells-group/commentscope/internal/llm"
	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/internal/pipeline"
	"github.com/sells-group/commentscope/internal/session"
)

var (
	analyzeUser        string
	analyzeFirstParty  bool
	analyzeSave        bool
	analyzeInteractive bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <question>",
	Short: "Run a first-turn analysis, optionally followed by interactive follow-ups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, config.ModeAnalyze)
		if err != nil {
			return err
		}
		defer env.Close()

		sc := session.New(analyzeUser, env.WorkDir)
		defer sc.Cleanup() //nolint:errcheck

		out := cmd.OutOrStdout()
		reply, err := env.Pipeline.FirstTurn(ctx, sc, args[0], pipeline.TurnOptions{
			FirstParty: analyzeFirstParty,
			Progress:   progressPrinter(cmd.ErrOrStderr()),
		})
		printReply(out, reply, err)
		if err != nil {
			return err
		}

		if analyzeInteractive && sc.HasAnalysis() {
			if err := followUpLoop(ctx, env.Pipeline, sc, cmd.InOrStdin(), out); err != nil {
				return err
			}
		}

		if analyzeSave && sc.HasAnalysis() {
			name, err := pipeline.Save(ctx, env.Store, sc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nsaved as %s\n", name)
		}
		return nil
	},
}

// followUpLoop reads one follow-up question per line until EOF or "exit".
func followUpLoop(ctx context.Context, p *pipeline.Pipeline, sc *session.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		reply, err := p.FollowUp(ctx, sc, line)
		printReply(out, reply, err)
		if err != nil {
			return err
		}
	}
}

// printReply writes a reply, or a visible system error line when err is set.
func printReply(w io.Writer, reply model.Reply, err error) {
	if err != nil {
		zap.L().Error("turn failed", zap.Error(err))
		fmt.Fprintln(w, llm.MsgSystemError+err.Error())
		return
	}
	fmt.Fprintln(w, reply.Text)
}

func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	last := ""
	return func(fraction float64, stage string) {
		line := fmt.Sprintf("[%3.0f%%] %s", fraction*100, stage)
		if line == last {
			return
		}
		last = line
		fmt.Fprintln(w, line)
	}
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", defaultUser(), "user the session belongs to")
	analyzeCmd.Flags().BoolVar(&analyzeFirstParty, "first-party", false, "add catalog videos and drop excluded titles")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "save the session when done")
	analyzeCmd.Flags().BoolVarP(&analyzeInteractive, "interactive", "i", false, "read follow-up questions from stdin")
	rootCmd.AddCommand(analyzeCmd)
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
