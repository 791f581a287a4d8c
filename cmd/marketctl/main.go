// Command marketctl is a command-line client for marketd. It manages wallet
// key files, signs in with a wallet, and drives the market API.
//
// Usage:
//
//	marketctl keygen [-out key.json -password ...]
//	marketctl login -keyfile key.json -password ...
//	marketctl markets [-state active|all]
//	marketctl market <id>
//	marketctl create -question "..." -duration 24h
//	marketctl bet -market 1 -choice yes -amount 0.5
//	marketctl resolve -market 1 -outcome no
//	marketctl claim -market 1
//	marketctl position -market 1 -user 0x...
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/predictbase/marketd/internal/auth"
	"github.com/predictbase/marketd/internal/crypto"
	"github.com/predictbase/marketd/internal/units"
)

const usage = `usage: marketctl <command> [flags]

commands:
  keygen     generate a wallet, optionally writing an encrypted key file
  login      sign in with a wallet and print a bearer token
  markets    list markets
  market     show one market
  create     create a market
  bet        place a bet
  resolve    resolve a market
  claim      claim winnings
  position   show a user's position in a market

Run "marketctl <command> -h" for command flags. MARKETD_API and
MARKETD_TOKEN provide defaults for -api and -token.`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "marketctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return flag.ErrHelp
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "keygen":
		return cmdKeygen(args, out)
	case "login":
		return cmdLogin(ctx, args, out)
	case "markets":
		return cmdMarkets(ctx, args, out)
	case "market":
		return cmdMarket(ctx, args, out)
	case "create":
		return cmdCreate(ctx, args, out)
	case "bet":
		return cmdBet(ctx, args, out)
	case "resolve":
		return cmdResolve(ctx, args, out)
	case "claim":
		return cmdClaim(ctx, args, out)
	case "position":
		return cmdPosition(ctx, args, out)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// apiFlags registers the flags shared by every API command.
type apiFlags struct {
	api   string
	token string
}

func (f *apiFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.api, "api", envOr("MARKETD_API", "http://localhost:8080"), "marketd base URL")
	fs.StringVar(&f.token, "token", os.Getenv("MARKETD_TOKEN"), "bearer token from login")
}

func (f *apiFlags) client() *apiClient { return newAPIClient(f.api, f.token) }

func cmdKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	path := fs.String("out", "", "write an encrypted key file to this path")
	password := fs.String("password", os.Getenv("MARKETCTL_KEY_PASSWORD"), "key file password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w, err := crypto.GenerateWallet()
	if err != nil {
		return err
	}
	if *path == "" {
		return printJSON(out, map[string]string{
			"address":     w.Address().Hex(),
			"private_key": w.PrivateKeyHex(),
		})
	}
	if *password == "" {
		return errors.New("keygen: -password is required with -out")
	}
	data, err := crypto.EncryptKey(w.PrivateKeyHex(), *password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*path, data, 0o600); err != nil {
		return fmt.Errorf("keygen: write %s: %w", *path, err)
	}
	return printJSON(out, map[string]string{"address": w.Address().Hex(), "key_file": *path})
}

func cmdLogin(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	var api apiFlags
	api.register(fs)
	key := fs.String("key", os.Getenv("MARKETCTL_PRIVATE_KEY"), "hex private key")
	keyFile := fs.String("keyfile", "", "encrypted key file")
	password := fs.String("password", os.Getenv("MARKETCTL_KEY_PASSWORD"), "key file password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	hexKey, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    *key,
		EncryptedKeyPath: *keyFile,
		KeyPassword:      *password,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	w, err := crypto.NewWallet(hexKey)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	c := api.client()
	var health struct {
		ChainID int64 `json:"chain_id"`
	}
	// A degraded server answers 503 but still reports its chain id.
	if err := c.get(ctx, "/api/health", &health); err != nil {
		var apiErr *apiError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
			return fmt.Errorf("login: %w", err)
		}
		if err := json.Unmarshal(apiErr.Body, &health); err != nil {
			return fmt.Errorf("login: decode health: %w", err)
		}
	}
	if health.ChainID == 0 {
		return errors.New("login: server did not report a chain id")
	}

	msg := auth.LoginMessage{
		ChainID:   health.ChainID,
		Address:   w.Address(),
		Timestamp: time.Now(),
	}.String()
	sig, err := w.SignText([]byte(msg))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	var sess auth.Session
	if err := c.post(ctx, "/api/auth/login", map[string]string{
		"message":   msg,
		"signature": sig,
	}, &sess); err != nil {
		return err
	}
	return printJSON(out, sess)
}

func cmdMarkets(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("markets", flag.ContinueOnError)
	var api apiFlags
	api.register(fs)
	state := fs.String("state", "active", "active or all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var resp json.RawMessage
	if err := api.client().get(ctx, "/api/markets?state="+*state, &resp); err != nil {
		return err
	}
	return printJSON(out, resp)
}

func cmdMarket(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("market", flag.ContinueOnError)
	var api apiFlags
	api.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("market: expected exactly one market id")
	}
	var resp json.RawMessage
	if err := api.client().get(ctx, "/api/markets/"+fs.Arg(0), &resp); err != nil {
		return err
	}
	return printJSON(out, resp)
}

func cmdCreate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	var api apiFlags
	api.register(fs)
	question := fs.String("question", "", "market question")
	duration := fs.String("duration", "", "time until betting closes, e.g. 24h")
	end := fs.String("end", "", "absolute end time (RFC 3339)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body := map[string]any{"question": *question}
	switch {
	case *duration != "" && *end != "":
		return errors.New("create: use -duration or -end, not both")
	case *duration != "":
		body["duration"] = *duration
	case *end != "":
		t, err := time.Parse(time.RFC3339, *end)
		if err != nil {
			return fmt.Errorf("create: -end: %w", err)
		}
		body["end_time"] = t
	default:
		return errors.New("create: -duration or -end is required")
	}

	var resp json.RawMessage
	if err := api.client().post(ctx, "/api/markets", body, &resp); err != nil {
		return err
	}
	return printJSON(out, resp)
}

func cmdBet(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bet", flag.ContinueOnError)
	var api apiFlags
	api.register(fs)
	market := fs.String("market", "", "market id")
	choice := fs.String("choice", "", "yes or no")
	amount := fs.String("amount", "", "stake in whole coins, e.g. 0.25")
	decimals := fs.Int("decimals", 18, "decimals of the network's coin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *market == "" || *choice == "" || *amount == "" {
		return errors.New("bet: -market, -choice and -amount are required")
	}
	base, err := units.Parse(*amount, int32(*decimals))
	if err != nil {
		return fmt.Errorf("bet: %w", err)
	}

	var resp json.RawMessage
	if err := api.client().post(ctx, "/api/markets/"+*market+"/bets", map[string]any{
		"choice": strings.ToLower(*choice),
		"amount": base,
	}, &resp); err != nil {
		return err
	}
	return printJSON(out, resp)
}

func cmdResolve(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	var api apiFlags
	api.register(fs)
	market := fs.String("market", "", "market id")
	outcome := fs.String("outcome", "", "yes or no")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *market == "" || *outcome == "" {
		return errors.New("resolve: -market and -outcome are required")
	}
	var resp json.RawMessage
	if err := api.client().post(ctx, "/api/markets/"+*market+"/resolve", map[string]string{
		"outcome": strings.ToLower(*outcome),
	}, &resp); err != nil {
		return err
	}
	return printJSON(out, resp)
}

func cmdClaim(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	var api apiFlags
	api.register(fs)
	market := fs.String("market", "", "market id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *market == "" {
		return errors.New("claim: -market is required")
	}
	var resp json.RawMessage
	if err := api.client().post(ctx, "/api/markets/"+*market+"/claim", nil, &resp); err != nil {
		return err
	}
	return printJSON(out, resp)
}

func cmdPosition(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("position", flag.ContinueOnError)
	var api apiFlags
	api.register(fs)
	market := fs.String("market", "", "market id")
	user := fs.String("user", "", "user address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *market == "" || *user == "" {
		return errors.New("position: -market and -user are required")
	}
	var resp json.RawMessage
	if err := api.client().get(ctx, "/api/markets/"+*market+"/positions/"+*user, &resp); err != nil {
		return err
	}
	return printJSON(out, resp)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
