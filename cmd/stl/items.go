package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageline/internal/engine"
)

func itemCmd() *cobra.Command {
	it := &cobra.Command{Use: "item", Short: "Inventory items"}
	it.AddCommand(itemListCmd(), itemCreateCmd(), itemShowCmd(), itemUpdateCmd(), itemDeleteCmd())
	return it
}

func itemListCmd() *cobra.Command {
	var opts engine.ItemListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items with their quantities and location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				views, err := e.ListItems(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(views)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Total", "In Use", "Available", "Location"})
				for _, v := range views {
					avail := fmt.Sprint(v.Quantities.Available)
					if v.OverAllocated {
						avail += " (!)"
					}
					tw.AppendRow(table.Row{v.Item.ID, v.Item.Name, v.Item.Category, v.Quantities.Total, v.Quantities.InUse, avail, v.Display})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Category, "category", "", "filter by category")
	cmd.Flags().StringVar(&opts.Location, "location", "", "filter by warehouse location text")
	cmd.Flags().BoolVar(&opts.AvailableOnly, "available", false, "only items with available units")
	return cmd
}

func itemCreateCmd() *cobra.Command {
	var opts engine.ItemCreateOptions
	var cost string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an item",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseAmount("cost", cost)
			if err != nil {
				return err
			}
			opts.UnitCost = d
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.CreateItem(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(it)
				}
				fmt.Printf("Created item %s (%s)\n", it.ID, it.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "item id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "item name")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().IntVar(&opts.TotalQuantity, "qty", 1, "total units owned")
	cmd.Flags().StringVar(&opts.Location, "location", "", "warehouse location")
	cmd.Flags().StringVar(&cost, "cost", "0", "unit cost")
	cmd.Flags().StringVar(&opts.ImageURL, "image-url", "", "image URL")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func itemShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.GetItem(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				tw := newTable()
				tw.AppendRows([]table.Row{
					{"ID", v.Item.ID},
					{"Name", v.Item.Name},
					{"Category", v.Item.Category},
					{"Tags", strings.Join(v.Item.Tags, ", ")},
					{"Unit cost", v.Item.UnitCost.StringFixed(2)},
					{"Times used", v.Item.TimesUsed},
					{"Total", v.Quantities.Total},
					{"Assigned", v.Quantities.Assigned},
					{"In use", v.Quantities.InUse},
					{"Available", v.Quantities.Available},
					{"Location", v.Display},
				})
				for _, pu := range v.Location.Projects {
					tw.AppendRow(table.Row{"  " + pu.Label, pu.Units})
				}
				tw.Render()
				if v.OverAllocated {
					fmt.Printf("warning: %d units assigned but only %d owned\n", v.Quantities.Assigned, v.Quantities.Total)
				}
				return nil
			})
		},
	}
}

func itemUpdateCmd() *cobra.Command {
	var name, category, location, cost, imageURL, notes string
	var tags []string
	var qty int
	cmd := &cobra.Command{
		Use:   "update <item-id>",
		Short: "Update an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ItemUpdateOptions{
				ID:       args[0],
				Name:     optionalString(cmd, "name", name),
				Category: optionalString(cmd, "category", category),
				Location: optionalString(cmd, "location", location),
				ImageURL: optionalString(cmd, "image-url", imageURL),
				Notes:    optionalString(cmd, "notes", notes),
				ActorID:  viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("tag") {
				opts.Tags = &tags
			}
			if cmd.Flags().Changed("qty") {
				opts.TotalQuantity = &qty
			}
			if cmd.Flags().Changed("cost") {
				d, err := parseAmount("cost", cost)
				if err != nil {
					return err
				}
				opts.UnitCost = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.UpdateItem(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(it)
				}
				fmt.Printf("Updated item %s\n", it.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "item name")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable, replaces all tags)")
	cmd.Flags().IntVar(&qty, "qty", 0, "total units owned")
	cmd.Flags().StringVar(&location, "location", "", "warehouse location")
	cmd.Flags().StringVar(&cost, "cost", "", "unit cost")
	cmd.Flags().StringVar(&imageURL, "image-url", "", "image URL")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

func itemDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Delete an item",
		Long:  "Refuses while active projects hold units of the item unless --force is given; forced deletes drop the item from active projects.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteItem(ctx, args[0], viper.GetString("actor-id"), viper.GetBool("force")); err != nil {
					return err
				}
				fmt.Printf("Deleted item %s\n", args[0])
				return nil
			})
		},
	}
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$")))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	return d, nil
}
