package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"spendlog/internal/analytics"
	"spendlog/internal/backend"
	"spendlog/internal/core"
	"spendlog/internal/services"
	"spendlog/internal/storage"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  `Apply every pending migration to the SQLite database and print the resulting schema version.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if backend.BackendType(a.cfg.DataBackend) != backend.SQLiteBackend {
				return fmt.Errorf("migrate needs the sqlite backend, got %q", a.cfg.DataBackend)
			}
			path := a.cfg.SQLiteDBPath
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
			if err := storage.RunMigrations(path); err != nil {
				return err
			}
			version, dirty, err := storage.SchemaVersion(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t) at %s\n", version, dirty, path)
			return nil
		},
	}
}

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(a.userAddCmd())
	cmd.AddCommand(a.userListCmd())
	cmd.AddCommand(a.userAllowanceCmd())
	return cmd
}

func (a *app) userAddCmd() *cobra.Command {
	var name, email, allowance, externalID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := core.ParseAllowance(allowance)
			if err != nil {
				return err
			}
			svc, err := a.openServices(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer svc.close()

			u, created, err := svc.users.CreateUser(cmd.Context(), services.NewUser{
				Name:       name,
				Email:      email,
				Allowance:  amount,
				ExternalID: externalID,
			})
			if err != nil {
				return err
			}
			verb := "created"
			if !created {
				verb = "exists"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s user %d %s <%s> allowance %s\n",
				verb, u.ID, u.Name, u.Email, core.FormatAmount(u.Allowance))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&allowance, "allowance", "0", "daily allowance")
	cmd.Flags().StringVar(&externalID, "external-id", "", "identity provider subject")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.openServices(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer svc.close()

			users, err := svc.users.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tALLOWANCE\tEXTERNAL ID")
			for _, u := range users {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, core.FormatAmount(u.Allowance), u.ExternalID)
			}
			return tw.Flush()
		},
	}
}

func (a *app) userAllowanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "allowance <user_id> <amount>",
		Short: "Set a user's daily allowance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			amount, err := core.ParseAllowance(args[1])
			if err != nil {
				return err
			}
			svc, err := a.openServices(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer svc.close()

			u, err := svc.users.UpdateAllowance(cmd.Context(), id, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d allowance %s\n", u.ID, core.FormatAmount(u.Allowance))
			return nil
		},
	}
}

func (a *app) analyticsCmd() *cobra.Command {
	var from, to string
	var withInsight, asJSON bool
	cmd := &cobra.Command{
		Use:   "analytics <user_id>",
		Short: "Print the spending report for a user",
		Long: `Compute expected versus actual spend for a user over an optional
date window. With --insight the report includes a narrated summary; without
an OpenAI key the local fallback text is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			var window core.DateRange
			if from != "" {
				if window.From, err = core.ParseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			if to != "" {
				if window.To, err = core.ParseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			svc, err := a.openServices(cmd.Context(), withInsight)
			if err != nil {
				return err
			}
			defer svc.close()

			report, err := svc.analytics.Analyze(cmd.Context(), id, window, withInsight)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reportJSON(report))
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().BoolVar(&withInsight, "insight", false, "attach a narrated insight")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("user_id must be a positive integer")
	}
	return id, nil
}

func printReport(cmd *cobra.Command, rep services.Report) {
	out := cmd.OutOrStdout()
	res := rep.Result
	window := rep.Range.Key()
	if window == ".." {
		window = "all time"
	}
	fmt.Fprintf(out, "%s (user %d), %s\n", rep.User.Name, rep.User.ID, window)
	fmt.Fprintf(out, "  allowance       %s/day\n", core.FormatAmount(rep.User.Allowance))
	fmt.Fprintf(out, "  days counted    %d\n", res.DaysCounted)
	fmt.Fprintf(out, "  expected spend  %s\n", core.FormatAmount(res.ExpectedSpend))
	fmt.Fprintf(out, "  actual spend    %s\n", core.FormatAmount(res.ActualSpend))
	fmt.Fprintf(out, "  savings         %s\n", core.FormatAmount(res.Savings))
	fmt.Fprintf(out, "  overspend days  %d\n", res.OverspendDays)
	for _, c := range analytics.RankCategories(res) {
		fmt.Fprintf(out, "    %-20s %s\n", c.Category, core.FormatAmount(c.Amount))
	}
	if rep.Insight != nil {
		fmt.Fprintf(out, "\n%s\n", rep.Insight.Text)
	}
}

func reportJSON(rep services.Report) map[string]any {
	byCategory := make(map[string]string, len(rep.Result.Categories))
	for _, c := range rep.Result.Categories {
		byCategory[c.Category] = c.Amount.String()
	}
	m := map[string]any{
		"user_id":        rep.User.ID,
		"name":           rep.User.Name,
		"allowance":      rep.User.Allowance.String(),
		"expected_spend": rep.Result.ExpectedSpend.String(),
		"actual_spend":   rep.Result.ActualSpend.String(),
		"savings":        rep.Result.Savings.String(),
		"days_counted":   rep.Result.DaysCounted,
		"overspend_days": rep.Result.OverspendDays,
		"by_category":    byCategory,
	}
	if rep.Insight != nil {
		m["ai_insight"] = rep.Insight.Text
		m["insight_source"] = string(rep.Insight.Source)
	}
	return m
}
