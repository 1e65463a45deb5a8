package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fenixctl/enroller/internal/model"
)

func goalsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "Manage the queue of shifts to enroll in",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show queued goals in the order they will be attempted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			goals, err := a.Preferences.Goals(cmd.Context())
			if err != nil {
				return err
			}
			return printGoals(cmd.OutOrStdout(), goals)
		},
	}

	var courseID string
	add := &cobra.Command{
		Use:   "add <course> <type> [shift]",
		Short: "Queue a shift; replaces the goal for the same course and type",
		Example: `  enroller goals add "Redes de Computadores" L RC-L03
  enroller goals add "Calculo Diferencial" T`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := model.RegistrationGoal{
				CourseID:   courseID,
				CourseName: args[0],
				Category:   model.Category(strings.ToUpper(args[1])),
			}
			if len(args) == 3 {
				goal.ShiftName = args[2]
			}
			if !goal.Category.Valid() {
				return fmt.Errorf("type must be one of T, TP, L, PB, S, TO, got %q", args[1])
			}

			a, _, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			goals, err := a.Preferences.AddGoal(cmd.Context(), goal)
			if err != nil {
				return err
			}
			return printGoals(cmd.OutOrStdout(), goals)
		},
	}
	add.Flags().StringVar(&courseID, "course-id", "", "Fenix course id")

	remove := &cobra.Command{
		Use:   "remove <index>",
		Short: "Drop the goal at index (see goals list)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be a number, got %q", args[0])
			}
			a, _, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			goals, err := a.Preferences.RemoveGoal(cmd.Context(), index)
			if err != nil {
				return err
			}
			return printGoals(cmd.OutOrStdout(), goals)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Preferences.ClearGoals(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared")
			return nil
		},
	}

	cmd.AddCommand(list, add, remove, clearCmd)
	return cmd
}

func printGoals(out io.Writer, goals []model.RegistrationGoal) error {
	if len(goals) == 0 {
		fmt.Fprintln(out, "No goals queued")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tCOURSE\tTYPE\tSHIFT")
	for i, goal := range goals {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, goal.CourseName, goal.Category, dash(goal.ShiftName))
	}
	return w.Flush()
}
