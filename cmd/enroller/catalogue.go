package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/service"
)

func degreesCmd(g *globals) *cobra.Command {
	var lang, term string
	cmd := &cobra.Command{
		Use:   "degrees",
		Short: "List the degrees offered in a term",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := g.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Preferences.Get(cmd.Context())
			if err != nil {
				return err
			}
			degrees, err := a.Offerings.Degrees(cmd.Context(), or(lang, p.Lang), or(term, p.Term))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDEGREE\tTYPE")
			for _, d := range degrees {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Label(), d.TypeName)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Language (pt-PT or en-GB)")
	cmd.Flags().StringVar(&term, "term", "", "Academic term, e.g. 2025/2026")
	return cmd
}

func coursesCmd(g *globals) *cobra.Command {
	var (
		degreeID, acronym string
		filter            service.OfferingFilter
		semester, period  string
		save              bool
	)
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "List a degree's course offerings with their classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := g.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			filter.Semester = model.Semester(semester)
			filter.Period = model.Period(strings.ToUpper(period))
			if err := validateFilter(filter); err != nil {
				return err
			}

			if save {
				req := model.UpdatePreferencesRequest{}
				if degreeID != "" {
					req.DegreeID, req.DegreeAcronym = &degreeID, &acronym
				}
				if semester != "" {
					req.Semester = &filter.Semester
				}
				if period != "" {
					req.Period = &filter.Period
				}
				if filter.Campus != "" {
					req.Campus = &filter.Campus
				}
				if _, err := a.Preferences.Update(ctx, req); err != nil {
					return err
				}
			}

			p, err := a.Preferences.Get(ctx)
			if err != nil {
				return err
			}
			q := service.QueryFor(p)
			if degreeID != "" {
				q.DegreeID, q.DegreeAcronym = degreeID, acronym
			}
			all, err := a.Offerings.Offerings(ctx, q)
			if err != nil {
				return err
			}
			offerings := a.Offerings.Filter(all, filter)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tACRONYM\tNAME\tSEM\tPERIOD\tSHIFTS")
			for _, o := range offerings {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					o.ID, o.Acronym, o.Name, dash(string(o.SemesterHint)), dash(string(o.PeriodHint)), shiftSummary(o))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d offerings\n", len(offerings), len(all))
			return nil
		},
	}
	cmd.Flags().StringVar(&degreeID, "degree", "", "Degree id (defaults to the saved degree)")
	cmd.Flags().StringVar(&acronym, "acronym", "", "Degree acronym, enables curriculum classification")
	cmd.Flags().StringVar(&semester, "semester", "", "Semester filter (1 or 2)")
	cmd.Flags().StringVar(&period, "period", "", "Period filter (P1..P4)")
	cmd.Flags().StringVar(&filter.Campus, "campus", "", "Campus filter")
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Search name, code or acronym")
	cmd.Flags().BoolVar(&save, "save", false, "Remember degree and filters in the preferences")
	return cmd
}

func validateFilter(f service.OfferingFilter) error {
	if f.Semester != "" && f.Semester != model.SemesterFirst && f.Semester != model.SemesterSecond {
		return fmt.Errorf("semester must be 1 or 2, got %q", f.Semester)
	}
	if f.Period != "" && !slices.Contains(model.Periods, f.Period) {
		return fmt.Errorf("period must be one of P1..P4, got %q", f.Period)
	}
	return nil
}

// shiftSummary renders "T:2 L:4" for the categories present.
func shiftSummary(o model.Offering) string {
	var parts []string
	for _, c := range o.CategoriesPresent() {
		parts = append(parts, fmt.Sprintf("%s:%d", c, len(o.ShiftsOf(c))))
	}
	return dash(strings.Join(parts, " "))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
