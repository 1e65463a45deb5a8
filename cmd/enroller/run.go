package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenixctl/enroller/internal/app"
	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/worker"
)

func runCmd(g *globals) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log into the portal and enroll in every queued goal",
		Long: `Run logs into the portal with PORTAL_USERNAME and PORTAL_PASSWORD (prompting
for whatever is missing), waits for the registration window and attempts the
queued goals round-robin until all are confirmed or the run deadline passes.
Interrupting cancels the run after the attempt in flight.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, log, err := g.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := portalLogin(ctx, a); err != nil {
				return err
			}

			events, unsubscribe := a.Bus.Subscribe(256)
			defer unsubscribe()

			status, err := a.Enrollment.Start(ctx, model.StartRunRequest{At: at})
			if err != nil {
				return err
			}
			if status.ScheduledAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s scheduled for %s\n", status.ID, status.ScheduledAt.Format("15:04:05"))
			}

			done := make(chan *model.RunReport, 1)
			go func() {
				rep, _ := a.Enrollment.Wait(context.WithoutCancel(ctx))
				done <- rep
			}()

			rep := follow(cmd.OutOrStdout(), status.ID, events, done)
			if rep == nil {
				return fmt.Errorf("run ended without a report")
			}
			log.Debug().Int("attempts", rep.Attempts).Int("passes", rep.Passes).Msg("Run finished")

			switch rep.Outcome {
			case model.OutcomeWindowFailed, model.OutcomeAborted:
				return fmt.Errorf("%s", worker.Summary(*rep))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Start at this time of day (HH:MM:SS); immediately if already past")
	return cmd
}

// follow prints the events of run until it finishes and returns its report.
// done delivers the report even when the finishing event was dropped.
func follow(out io.Writer, runID string, events <-chan model.RunEvent, done <-chan *model.RunReport) *model.RunReport {
	show := func(ev model.RunEvent) bool {
		if ev.RunID != runID {
			return false
		}
		fmt.Fprintf(out, "[%s] %s\n", ev.At.Format("15:04:05"), ev.Message)
		return ev.Type == model.EventRunFinished
	}
	for {
		select {
		case ev := <-events:
			if show(ev) {
				return ev.Report
			}
		case rep := <-done:
			for {
				select {
				case ev := <-events:
					if show(ev) {
						return ev.Report
					}
				default:
					return rep
				}
			}
		}
	}
}

func portalLogin(ctx context.Context, a *app.App) error {
	username, password := a.Config.PortalUsername, a.Config.PortalPassword
	if username == "" {
		fmt.Fprint(os.Stderr, "IST username: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}
	if password == "" {
		var err error
		if password, err = readSecret("IST password: "); err != nil {
			return err
		}
	}
	if username == "" || password == "" {
		return fmt.Errorf("portal credentials are required")
	}
	return a.Portal.Login(ctx, username, password)
}
