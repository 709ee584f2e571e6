package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/alferdousrana/Lifesheba/internal/cart"
	"github.com/alferdousrana/Lifesheba/internal/checkout"
	"github.com/alferdousrana/Lifesheba/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type cartView struct {
	Items      []domain.LineItem `json:"items"`
	TotalCount int               `json:"total_count"`
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			return printCart(cmd.OutOrStdout(), a.carts.Get(ctx, sessionID))
		}),
	}
}

func newAddCmd() *cobra.Command {
	var (
		qty           int
		name          string
		price         string
		discountPrice string
		image         string
	)

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			product, err := buildProduct(args[0], name, price, discountPrice, image)
			if err != nil {
				return err
			}
			store := a.carts.Get(ctx, sessionID)
			if err := store.AddItem(ctx, product, qty); err != nil {
				return err
			}
			return printCart(cmd.OutOrStdout(), store)
		}),
	}
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity to add")
	cmd.Flags().StringVar(&name, "name", "", "product name")
	cmd.Flags().StringVar(&price, "price", "", "unit price")
	cmd.Flags().StringVar(&discountPrice, "discount-price", "", "discounted unit price")
	cmd.Flags().StringVar(&image, "image", "", "image URL")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := domain.ParseProductID(args[0])
			if err != nil {
				return err
			}
			store := a.carts.Get(ctx, sessionID)
			store.RemoveItem(ctx, id)
			return printCart(cmd.OutOrStdout(), store)
		}),
	}
}

func newStepCmd(use string, direction domain.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <product-id>",
		Short: fmt.Sprintf("Step the quantity of a product (%s)", direction),
		Args:  cobra.ExactArgs(1),
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := domain.ParseProductID(args[0])
			if err != nil {
				return err
			}
			store := a.carts.Get(ctx, sessionID)
			if err := store.UpdateQuantity(ctx, id, direction); err != nil {
				return err
			}
			return printCart(cmd.OutOrStdout(), store)
		}),
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			store := a.carts.Get(ctx, sessionID)
			store.Clear(ctx)
			return printCart(cmd.OutOrStdout(), store)
		}),
	}
}

func newQuoteCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price the cart for a delivery address",
		Args:  cobra.NoArgs,
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			quote, err := a.checkout.Quote(a.carts.Get(ctx, sessionID), address)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quote)
		}),
	}
	cmd.Flags().StringVar(&address, "address", "", "delivery address")
	return cmd
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <access-token>",
		Short: "Store an access token and show its profile",
		Args:  cobra.ExactArgs(1),
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			users := a.auth()
			if err := users.SetToken(ctx, args[0]); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), users.User())
		}),
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			a.auth().Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		}),
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			users := a.auth()
			users.Initialize(ctx)
			user := users.User()
			if user == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), user)
		}),
	}
}

func newCheckoutCmd() *cobra.Command {
	var req checkout.Request

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the cart as the signed-in user",
		Long: "Place an order for the cart as the signed-in user. Flags left empty are\n" +
			"filled from the user's account profile (name, phone) and customer profile (address).",
		Args:  cobra.NoArgs,
		RunE: withCmdApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			users := a.auth()
			users.Initialize(ctx)
			if users.User() == nil {
				return errors.New("not logged in: run cartd login first")
			}

			result, err := a.checkout.Checkout(ctx, a.carts.Get(ctx, sessionID), users.Token(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "recipient name (default: profile full name)")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "contact phone number (default: profile phone)")
	cmd.Flags().StringVar(&req.Address, "address", "", "shipping address (default: customer profile address)")
	return cmd
}

func withCmdApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return fn(ctx, cmd, a, args)
		})(cmd, args)
	}
}

func buildProduct(rawID, name, price, discountPrice, image string) (domain.Product, error) {
	id, err := domain.ParseProductID(rawID)
	if err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{ID: id, Name: name, Image: image}

	if price != "" {
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return domain.Product{}, fmt.Errorf("invalid --price %q: %w", price, err)
		}
	}
	if discountPrice != "" {
		d, err := decimal.NewFromString(discountPrice)
		if err != nil {
			return domain.Product{}, fmt.Errorf("invalid --discount-price %q: %w", discountPrice, err)
		}
		p.DiscountPrice = decimal.NewNullDecimal(d)
	}
	return p, nil
}

func printCart(w io.Writer, store *cart.Store) error {
	snap := store.Snapshot()
	return printJSON(w, cartView{Items: snap.Items, TotalCount: snap.TotalCount})
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
