package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fitstogo/internal/daemonrun"
	"fitstogo/internal/store"
)

func newTryOnCommand(ctx *commandContext) *cobra.Command {
	tryonCmd := &cobra.Command{
		Use:   "tryon",
		Short: "Inspect and manage try-on sessions",
	}
	tryonCmd.AddCommand(newTryOnListCommand(ctx))
	tryonCmd.AddCommand(newTryOnShowCommand(ctx))
	tryonCmd.AddCommand(newTryOnRetryCommand(ctx))
	return tryonCmd
}

func newTryOnListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent try-on sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status store.SessionStatus
			if statusFlag != "" {
				parsed, ok := store.ParseSessionStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q (expected pending, processing, completed or failed)", statusFlag)
				}
				status = parsed
			}
			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				sessions, err := app.Store.ListSessions(cmd.Context(), status, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, sessions)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No try-on sessions")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.ID,
						s.UserID,
						string(s.Status),
						s.ProgressStage,
						s.Provider,
						s.CreatedAt.Local().Format(time.DateTime),
						truncate(s.ErrorMsg, 40),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "User", "Status", "Stage", "Provider", "Created", "Error"},
					rows, nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Only show sessions with this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum sessions to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTryOnShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one try-on session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				session, err := app.Store.GetSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if session == nil {
					return fmt.Errorf("try-on session %s not found", args[0])
				}
				if asJSON {
					return writeJSON(cmd, session)
				}
				rows := [][]string{
					{"ID", session.ID},
					{"User", session.UserID},
					{"Product", session.ProductID},
					{"Photo", session.UserPhotoID},
					{"Status", string(session.Status)},
					{"Stage", session.ProgressStage},
					{"Provider", session.Provider},
					{"Attempts", fmt.Sprint(session.Attempts)},
					{"Created", session.CreatedAt.Local().Format(time.DateTime)},
				}
				if session.CompletedAt != nil {
					rows = append(rows, []string{"Completed", session.CompletedAt.Local().Format(time.DateTime)})
				}
				if session.Description != "" {
					rows = append(rows, []string{"Description", truncate(session.Description, 80)})
				}
				if session.ResultURL != "" {
					rows = append(rows, []string{"Result", session.ResultURL})
				}
				if session.ErrorMsg != "" {
					rows = append(rows, []string{"Error", session.ErrorMsg})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTryOnRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-queue a failed try-on session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				if err := app.TryOn.Retry(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s re-queued\n", args[0])
				return nil
			})
		},
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
