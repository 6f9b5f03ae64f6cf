// cmd/storefront/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/domain/cart"
	"github.com/your-org/eid-storefront/internal/domain/order"
	"github.com/your-org/eid-storefront/internal/domain/user"
	"github.com/your-org/eid-storefront/internal/pkg/logger"
	"github.com/your-org/eid-storefront/internal/storefront"
)

const usage = `Usage: storefront <command> [flags] [args]

Commands:
  register --name NAME --phone PHONE EMAIL PASSWORD
  login EMAIL PASSWORD
  logout
  whoami
  products
  cart show
  cart add [--size S] [--qty N] PRODUCT_ID
  cart set [--size S] PRODUCT_ID QUANTITY
  cart remove [--size S] PRODUCT_ID
  cart clear
  cart retry
  checkout --name NAME --phone PHONE [--email E] [--address A] [--district D] [--notes N] [--payment METHOD]
  orders
  status ORDER_ID STATUS
  receipt [--html] [-o FILE] ORDER_ID
  resubmit
`

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logr := logger.New(cfg)
	logr.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := storefront.New(ctx, cfg, logr)
	if err != nil {
		logr.WithError(err).Fatal("Failed to start storefront")
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		logr.WithError(err).Fatal("Failed to restore state")
	}

	if err := run(ctx, app, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *storefront.App, cmd string, args []string) error {
	switch cmd {
	case "register":
		return register(ctx, app, args)
	case "login":
		if len(args) != 2 {
			return errUsage
		}
		return printResult(app.Auth.Login(ctx, args[0], args[1]))
	case "logout":
		app.Auth.Logout(ctx)
		fmt.Println("Signed out")
		return nil
	case "whoami":
		u := app.Auth.CurrentUser()
		if u == nil {
			fmt.Println("Not signed in")
			return nil
		}
		fmt.Printf("%s <%s> %s\n", u.DisplayName(), u.Email, u.Role)
		return nil
	case "products":
		return products(ctx, app)
	case "cart":
		return cartCommand(ctx, app, args)
	case "checkout":
		return checkout(ctx, app, args)
	case "orders":
		printOrders(app.Orders.All())
		return nil
	case "status":
		if len(args) != 2 {
			return errUsage
		}
		status, err := order.ParseStatus(args[1])
		if err != nil {
			return err
		}
		o, err := app.Orders.UpdateStatus(ctx, args[0], status)
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", o.ID, o.Status)
		return nil
	case "receipt":
		return receipt(app, args)
	case "resubmit":
		n, err := app.Orders.Resubmit(ctx)
		fmt.Printf("%d order(s) synced\n", n)
		return err
	default:
		return errUsage
	}
}

func register(ctx context.Context, app *storefront.App, args []string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	name := fs.String("name", "", "full name")
	phone := fs.String("phone", "", "phone number")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		return errUsage
	}
	return printResult(app.Auth.Register(ctx, user.RegisterRequest{
		Name:     *name,
		Email:    fs.Arg(0),
		Phone:    *phone,
		Password: fs.Arg(1),
	}))
}

func printResult(res user.Result) error {
	if !res.Success {
		return errors.New(res.Error)
	}
	fmt.Printf("Signed in as %s\n", res.User.DisplayName())
	return nil
}

func products(ctx context.Context, app *storefront.App) error {
	env, err := app.API.Get(ctx, "/products")
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE")
	for _, line := range cart.NormalizeLines(env.Items()) {
		fmt.Fprintf(w, "%s\t%s\t%s %s\n", line.ProductID, line.Name, app.Config.Store.Currency, line.Price.StringFixed(2))
	}
	return w.Flush()
}

// lookup fills in catalog details so the local cart can render before the
// server answers
func lookup(ctx context.Context, app *storefront.App, productID string) cart.Line {
	line := cart.Line{ProductID: productID, Name: productID}
	env, err := app.API.Get(ctx, "/products")
	if err != nil {
		return line
	}
	for _, l := range cart.NormalizeLines(env.Items()) {
		if l.ProductID == productID {
			return l
		}
	}
	return line
}

func cartCommand(ctx context.Context, app *storefront.App, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := pflag.NewFlagSet("cart "+args[0], pflag.ContinueOnError)
	size := fs.String("size", "", "size variant")
	qty := fs.Int("qty", 1, "quantity")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}

	switch args[0] {
	case "show":
	case "add":
		if fs.NArg() != 1 {
			return errUsage
		}
		line := lookup(ctx, app, fs.Arg(0))
		line.Size = *size
		line.Quantity = *qty
		app.Cart.Add(ctx, line)
	case "set":
		if fs.NArg() != 2 {
			return errUsage
		}
		n, err := strconv.Atoi(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid quantity %q", fs.Arg(1))
		}
		app.Cart.UpdateQuantity(ctx, fs.Arg(0), *size, n)
	case "remove":
		if fs.NArg() != 1 {
			return errUsage
		}
		app.Cart.Remove(ctx, fs.Arg(0), *size)
	case "clear":
		app.Cart.Clear(ctx)
	case "retry":
		if err := app.Cart.RetryPending(ctx); err != nil {
			return err
		}
	default:
		return errUsage
	}

	printCart(app)
	return nil
}

func printCart(app *storefront.App) {
	lines := app.Cart.Lines()
	if len(lines) == 0 {
		fmt.Println("Cart is empty")
		return
	}
	currency := app.Config.Store.Currency
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tSIZE\tQTY\tTOTAL")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s %s\n", l.Name, l.Size, l.Quantity, currency, l.Total().StringFixed(2))
	}
	subtotal := app.Cart.Subtotal()
	charge, total := app.Orders.Totals(subtotal)
	fmt.Fprintf(w, "\t\tSubtotal\t%s %s\n", currency, subtotal.StringFixed(2))
	fmt.Fprintf(w, "\t\tDelivery\t%s %s\n", currency, charge.StringFixed(2))
	fmt.Fprintf(w, "\t\tTotal\t%s %s\n", currency, total.StringFixed(2))
	w.Flush()

	if pending := app.Cart.Pending(); len(pending) > 0 {
		fmt.Printf("%d change(s) not yet saved to the server\n", len(pending))
	}
}

func checkout(ctx context.Context, app *storefront.App, args []string) error {
	fs := pflag.NewFlagSet("checkout", pflag.ContinueOnError)
	var c order.Customer
	fs.StringVar(&c.Name, "name", "", "recipient name")
	fs.StringVar(&c.Phone, "phone", "", "phone number")
	fs.StringVar(&c.Email, "email", "", "email, defaults to the signed-in user")
	fs.StringVar(&c.Address, "address", "", "delivery address")
	fs.StringVar(&c.District, "district", "", "district")
	fs.StringVar(&c.Notes, "notes", "", "delivery notes")
	payment := fs.String("payment", "cod", "payment method")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if c.Name == "" || c.Phone == "" {
		return errors.New("name and phone are required")
	}

	o, err := app.Checkout(ctx, c, *payment)
	if err != nil {
		return err
	}
	fmt.Printf("Order %s placed, total %s %s\n", o.ID, app.Config.Store.Currency, o.Total.StringFixed(2))
	if !o.Synced {
		fmt.Println("The store could not be reached. The order is saved locally; run `storefront resubmit` later.")
	}
	return nil
}

func printOrders(orders []order.Order) {
	if len(orders) == 0 {
		fmt.Println("No orders")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tITEMS\tTOTAL\tSTATUS")
	for _, o := range orders {
		status := string(o.Status)
		if !o.Synced {
			status += " (local)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", o.ID, o.CreatedAt.Format("2006-01-02"), o.ItemCount(), o.Total.StringFixed(2), status)
	}
	w.Flush()
}

func receipt(app *storefront.App, args []string) error {
	fs := pflag.NewFlagSet("receipt", pflag.ContinueOnError)
	html := fs.Bool("html", false, "write the HTML page instead of a PDF")
	out := fs.StringP("output", "o", "", "output file")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	id := fs.Arg(0)

	var data []byte
	if *html {
		page, err := app.ReceiptHTML(id)
		if err != nil {
			return err
		}
		data = []byte(page)
	} else {
		buf, err := app.Receipt(id)
		if err != nil {
			return err
		}
		data = buf.Bytes()
	}

	if *out == "" {
		ext := ".pdf"
		if *html {
			ext = ".html"
		}
		*out = "receipt-" + id + ext
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	fmt.Println("Receipt written to", *out)
	return nil
}
