package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cartengine"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/env"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const usage = `usage: cart-cli [flags] <command> [args]

commands:
  show
  summary
  add <product_id> <base_price> <quantity> [variant_id]
  set <product_id> <quantity> [variant_id]
  remove <product_id> [variant_id]
  clear
  logout
`

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", env.Get("STOREFRONT_CART_API_URL", "http://localhost:8080"), "storefront API base URL")
	statePath := flag.String("state", "", "file holding the guest cart between runs")
	storeKind := flag.String("store", "file", "guest cart store: file or sqlite")
	token := flag.String("token", os.Getenv("STOREFRONT_CART_TOKEN"), "access token; when set the cart runs in user mode")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logg := logger.New(logger.Options{
		ServiceName: "cart-cli",
		Level:       logger.ParseLevel(*logLevel),
		Output:      os.Stderr,
	})

	var pricingCfg config.PricingConfig
	if err := envconfig.Process("", &pricingCfg); err != nil {
		exit(fmt.Sprintf("invalid pricing config: %v", err))
	}
	calc, err := pricing.NewCalculator(pricingCfg)
	if err != nil {
		exit(fmt.Sprintf("invalid pricing config: %v", err))
	}

	repo, err := cartengine.NewHTTPRepository(*apiURL)
	if err != nil {
		exit(err.Error())
	}

	local, closeLocal, err := openLocalStore(*storeKind, *statePath)
	if err != nil {
		exit(err.Error())
	}
	defer closeLocal()

	ctx := context.Background()
	engine, err := cartengine.New(ctx, cartengine.Options{
		Repository: repo,
		Local:      local,
		Logger:     logg,
	})
	if err != nil {
		exit(err.Error())
	}

	if *token != "" {
		if _, err := engine.Login(ctx, *token); err != nil {
			closeEngine(ctx, engine)
			exit(fmt.Sprintf("login failed: %v", err))
		}
	}

	out, err := run(ctx, engine, calc, flag.Arg(0), flag.Args()[1:])
	closeEngine(ctx, engine)
	if err != nil {
		exit(err.Error())
	}
	if out != nil {
		printJSON(out)
	}
}

type cartOutput struct {
	Mode    string           `json:"mode"`
	GuestID string           `json:"guest_id,omitempty"`
	Items   []types.CartItem `json:"items"`
}

func run(ctx context.Context, engine *cartengine.Engine, calc *pricing.Calculator, command string, args []string) (any, error) {
	show := func(items []types.CartItem) any {
		out := cartOutput{Mode: engine.Mode().String(), Items: items}
		if out.Mode == "guest" {
			out.GuestID = engine.GuestID()
		}
		return out
	}

	switch command {
	case "show":
		return show(engine.Items()), nil

	case "summary":
		return engine.Summary(calc), nil

	case "add":
		if len(args) < 3 {
			return nil, fmt.Errorf("add needs <product_id> <base_price> <quantity>")
		}
		price, err := decimal.NewFromString(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid base price %q", args[1])
		}
		qty, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q", args[2])
		}
		item := types.CartItem{ProductID: args[0], VariantID: optionalArg(args, 3), BasePrice: price}
		items, err := engine.AddItem(ctx, item, qty)
		if err != nil {
			return nil, err
		}
		return show(items), nil

	case "set":
		if len(args) < 2 {
			return nil, fmt.Errorf("set needs <product_id> <quantity>")
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q", args[1])
		}
		items, err := engine.UpdateQuantity(ctx, args[0], optionalArg(args, 2), qty)
		if err != nil {
			return nil, err
		}
		return show(items), nil

	case "remove":
		if len(args) < 1 {
			return nil, fmt.Errorf("remove needs <product_id>")
		}
		items, err := engine.RemoveItem(ctx, args[0], optionalArg(args, 1))
		if err != nil {
			return nil, err
		}
		return show(items), nil

	case "clear":
		items, err := engine.ClearCart(ctx)
		if err != nil {
			return nil, err
		}
		return show(items), nil

	case "logout":
		engine.Logout(ctx)
		return show(engine.Items()), nil
	}
	return nil, fmt.Errorf("unknown command %q\n\n%s", command, usage)
}

// closeEngine gives queued guest syncs a bounded window to reach the server.
func closeEngine(ctx context.Context, engine *cartengine.Engine) {
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := engine.Close(closeCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: pending cart syncs dropped: %v\n", err)
	}
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func openLocalStore(kind, path string) (cartengine.LocalStore, func(), error) {
	switch kind {
	case "file":
		if path == "" {
			path = defaultStatePath("cart.json")
		}
		return cartengine.NewFileStore(path), func() {}, nil
	case "sqlite":
		if path == "" {
			path = defaultStatePath("cart.db")
		}
		store, err := cartengine.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q, want file or sqlite", kind)
	}
}

func defaultStatePath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".storefront-" + name
	}
	return filepath.Join(dir, "storefront", name)
}

func printJSON(v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exit(err.Error())
	}
	fmt.Println(string(raw))
}

func exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
