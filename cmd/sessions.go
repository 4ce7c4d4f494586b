package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/commentscope/internal/config"
	"github.com/sells-group/commentscope/internal/export"
	"github.com/sells-group/commentscope/internal/session"
)

var sessionsUser string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved sessions",
}

// withStore opens the configured store for one sessions subcommand.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st session.Store) error) error {
	ctx := cmd.Context()
	if err := cfg.Validate(config.ModeSessions); err != nil {
		return err
	}
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(ctx, st)
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st session.Store) error {
			return listSessions(ctx, st, sessionsUser, cmd.OutOrStdout())
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a saved session as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st session.Store) error {
			return showSession(ctx, st, sessionsUser, args[0], cmd.OutOrStdout())
		})
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a saved session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st session.Store) error {
			if err := st.Rename(ctx, sessionsUser, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s -> %s\n", args[0], args[1])
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st session.Store) error {
			if err := st.Delete(ctx, sessionsUser, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		})
	},
}

var sessionsExportOut string

var sessionsExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export a saved session's videos, comments and chat to .xlsx",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st session.Store) error {
			b, err := st.Load(ctx, sessionsUser, args[0])
			if err != nil {
				return err
			}
			out := sessionsExportOut
			if out == "" {
				out = args[0] + ".xlsx"
			}
			if err := export.WriteWorkbook(out, b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		})
	},
}

func listSessions(ctx context.Context, st session.Store, user string, w io.Writer) error {
	list, err := st.List(ctx, user)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "no saved sessions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTURNS\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Name, s.Turns, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// sessionView is the YAML shape of a saved session. Raw CSV is omitted.
type sessionView struct {
	Name       string `yaml:"name"`
	User       string `yaml:"user"`
	Schema     any    `yaml:"schema"`
	Chat       any    `yaml:"chat"`
	SampleText string `yaml:"sample_text"`
	Comments   int    `yaml:"comments_csv_bytes"`
	Videos     int    `yaml:"videos_csv_bytes"`
}

func showSession(ctx context.Context, st session.Store, user, name string, w io.Writer) error {
	b, err := st.Load(ctx, user, name)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sessionView{
		Name:       name,
		User:       user,
		Schema:     b.Schema,
		Chat:       b.Chat,
		SampleText: b.SampleText,
		Comments:   len(b.CommentsCSV),
		Videos:     len(b.VideosCSV),
	}); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

func init() {
	sessionsCmd.PersistentFlags().StringVar(&sessionsUser, "user", defaultUser(), "user the sessions belong to")
	sessionsExportCmd.Flags().StringVarP(&sessionsExportOut, "out", "o", "", "output path (default <name>.xlsx)")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsRenameCmd, sessionsDeleteCmd, sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}
