package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/staging"
)

func projectCmd() *cobra.Command {
	pr := &cobra.Command{Use: "project", Short: "Client projects"}
	pr.AddCommand(
		projectListCmd(),
		projectCreateCmd(),
		projectShowCmd(),
		projectUpdateCmd(),
		projectArchiveCmd(),
		projectDeleteCmd(),
		projectAssignCmd(),
		projectUnassignCmd(),
		projectPricingCmd(),
	)
	return pr
}

func projectListCmd() *cobra.Command {
	var status, state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				views, err := e.ListProjects(ctx, engine.ProjectListOptions{Status: status, State: domain.StagingState(state)})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Project", "State", "Staging", "Contract End", "Units", "Total"})
				for _, v := range views {
					tw.AppendRow(table.Row{v.Project.ID, v.Label, v.State, formatDay(v.Project.StagingDate), formatDay(v.ContractEnd), v.Units, v.Invoice.Total.StringFixed(2)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "active or archived")
	cmd.Flags().StringVar(&state, "state", "", "pending, upcoming, staged or archived")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var stagingDate string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDayFlag(stagingDate)
			if err != nil {
				return err
			}
			opts.StagingDate = d
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Created project %s (%s)\n", p.ID, p.Label())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&opts.ShortAddress, "short-address", "", "short address")
	cmd.Flags().StringVar(&opts.FullAddress, "address", "", "full address, used for tax")
	cmd.Flags().StringVar(&opts.JobLocation, "job-location", "", "job location")
	cmd.Flags().StringVar(&stagingDate, "staging-date", "", "staging date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its items and invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("%s [%s] %s\n", v.Label, v.State, v.Project.ID)
				if v.Project.StagingDate != nil {
					fmt.Printf("Staged %s, contract ends %s\n", formatDay(v.Project.StagingDate), formatDay(v.ContractEnd))
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Item", "Name", "Units", "Unit Cost"})
				for _, line := range v.Items {
					name := line.Name
					if line.Missing {
						name = "(missing) " + line.ItemID
					}
					tw.AppendRow(table.Row{line.ItemID, name, line.Units, line.UnitCost.StringFixed(2)})
				}
				tw.AppendFooter(table.Row{"", "Total units", v.Units, ""})
				tw.Render()
				printInvoice(v)
				return nil
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var client, shortAddress, address, jobLocation, stagingDate, notes string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update a project",
		Long:  "Pass --staging-date \"\" to clear the staging date. Archived projects need --force.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProjectUpdateOptions{
				ID:           args[0],
				ClientName:   optionalString(cmd, "client", client),
				ShortAddress: optionalString(cmd, "short-address", shortAddress),
				FullAddress:  optionalString(cmd, "address", address),
				JobLocation:  optionalString(cmd, "job-location", jobLocation),
				Notes:        optionalString(cmd, "notes", notes),
				ActorID:      viper.GetString("actor-id"),
				Force:        viper.GetBool("force"),
			}
			if cmd.Flags().Changed("staging-date") {
				d, err := parseDayFlag(stagingDate)
				if err != nil {
					return err
				}
				opts.StagingDate = d
				opts.ClearStagingDate = d == nil
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Updated project %s\n", p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "client name")
	cmd.Flags().StringVar(&shortAddress, "short-address", "", "short address")
	cmd.Flags().StringVar(&address, "address", "", "full address, used for tax")
	cmd.Flags().StringVar(&jobLocation, "job-location", "", "job location")
	cmd.Flags().StringVar(&stagingDate, "staging-date", "", "staging date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

func projectArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <project-id>",
		Short: "Archive a project and release its units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ArchiveProject(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Archived project %s\n", p.ID)
				return nil
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteProject(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("Deleted project %s\n", args[0])
				return nil
			})
		},
	}
}

func projectAssignCmd() *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "assign <project-id> <item-id>",
		Short: "Assign units of an item to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AssignItem(ctx, engine.AssignOptions{
					ProjectID: args[0],
					ItemID:    args[1],
					Quantity:  qty,
					ActorID:   viper.GetString("actor-id"),
					Force:     viper.GetBool("force"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Assigned %d x %s to %s (%d units on project)\n", qty, args[1], p.Label(), p.Histogram()[args[1]])
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&qty, "qty", 1, "units to assign")
	return cmd
}

func projectUnassignCmd() *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "unassign <project-id> <item-id>",
		Short: "Remove units of an item from a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UnassignItem(ctx, args[0], args[1], qty, viper.GetString("actor-id"), viper.GetBool("force"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Removed %s from %s (%d units left on project)\n", args[1], p.Label(), p.Histogram()[args[1]])
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&qty, "qty", 1, "units to remove")
	return cmd
}

func projectPricingCmd() *cobra.Command {
	var rooms []string
	var replace bool
	cmd := &cobra.Command{
		Use:   "pricing <project-id>",
		Short: "Set priced rooms on a project",
		Long: `Each --room is "Room=qty" (price from settings) or "Room=qty@price".
A quantity of 0 removes the room. --replace drops rooms not listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseRoomSpecs(rooms)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.SetRoomPricing(ctx, engine.RoomPricingOptions{
					ProjectID: args[0],
					Lines:     lines,
					Replace:   replace,
					ActorID:   viper.GetString("actor-id"),
					Force:     viper.GetBool("force"),
				}); err != nil {
					return err
				}
				v, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				printInvoice(v)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&rooms, "room", nil, "room line (repeatable)")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace all room pricing")
	return cmd
}

// parseRoomSpecs reads "Room=qty" and "Room=qty@price" specs.
func parseRoomSpecs(specs []string) ([]engine.RoomLine, error) {
	lines := make([]engine.RoomLine, 0, len(specs))
	for _, spec := range specs {
		eq := strings.LastIndex(spec, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("room %q: expected Room=qty[@price]", spec)
		}
		line := engine.RoomLine{Room: strings.TrimSpace(spec[:eq])}
		qtyText := strings.TrimSpace(spec[eq+1:])
		if at := strings.Index(qtyText, "@"); at >= 0 {
			price, err := parseAmount("room "+line.Room, qtyText[at+1:])
			if err != nil {
				return nil, err
			}
			line.Price = &price
			qtyText = strings.TrimSpace(qtyText[:at])
		}
		qty, err := strconv.Atoi(qtyText)
		if err != nil {
			return nil, fmt.Errorf("room %q: invalid quantity %q", spec, qtyText)
		}
		line.Quantity = qty
		lines = append(lines, line)
	}
	return lines, nil
}

func printInvoice(v engine.ProjectView) {
	inv := v.Invoice
	tw := newTable()
	tw.SetTitle("Invoice: " + v.Label)
	tw.AppendHeader(table.Row{"Room", "Qty", "Price", "Line"})
	rooms := make([]string, 0, len(v.Project.RoomPricing))
	for room := range v.Project.RoomPricing {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	for _, room := range rooms {
		rp := v.Project.RoomPricing[room]
		tw.AppendRow(table.Row{room, rp.Quantity, rp.Price.StringFixed(2), rp.Price.Mul(decimal.NewFromInt(int64(rp.Quantity))).StringFixed(2)})
	}
	tw.AppendSeparator()
	tw.AppendRows([]table.Row{
		{"Subtotal", "", "", inv.Subtotal.StringFixed(2)},
		{"Delivery fee", "", "", inv.DeliveryFee.StringFixed(2)},
		{"Pickup fee", "", "", inv.PickupFee.StringFixed(2)},
		{"Tax (" + inv.TaxRule + ")", "", inv.TaxRate.String(), inv.Tax.StringFixed(2)},
	})
	tw.AppendFooter(table.Row{"Total", "", "", inv.Total.StringFixed(2)})
	tw.Render()
}

func parseDayFlag(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := staging.ParseDate(raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", raw)
	}
	return &d, nil
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
