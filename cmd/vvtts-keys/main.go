// Command vvtts-keys is the credential admin tool. Credentials only enter
// the system through it; the HTTP API has no key-management surface.
//
// Usage:
//
//	vvtts-keys create -name "mobile app"
//	vvtts-keys list
//	vvtts-keys delete -id a1b2c3d4
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/vietvoice/vvtts/internal/auth"
	"github.com/vietvoice/vvtts/internal/config"
	"github.com/vietvoice/vvtts/pkg/broker"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		return 2
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "vvtts-keys: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := broker.NewRedis(ctx, cfg.Broker.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vvtts-keys: %v\n", err)
		return 1
	}
	defer b.Close()
	mgr := auth.NewManager(b)

	switch cmd := flag.Arg(0); cmd {
	case "create":
		return cmdCreate(ctx, mgr, flag.Args()[1:])
	case "list":
		return cmdList(ctx, mgr)
	case "delete":
		return cmdDelete(ctx, mgr, flag.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "vvtts-keys: unknown command %q\n", cmd)
		usage()
		return 2
	}
}

func cmdCreate(ctx context.Context, mgr *auth.Manager, args []string) int {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "human-readable name for the credential")
	fs.Parse(args)
	if *name == "" {
		fmt.Fprintln(os.Stderr, "vvtts-keys: create requires -name")
		return 2
	}

	fullKey, info, err := mgr.Create(ctx, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vvtts-keys: %v\n", err)
		return 1
	}

	fmt.Printf("Created API key %q\n\n", info.Name)
	fmt.Printf("  key_id:  %s\n", info.KeyID)
	fmt.Printf("  api_key: %s\n\n", fullKey)
	fmt.Println("Store the api_key now; only its hash is kept and it cannot be shown again.")
	return 0
}

func cmdList(ctx context.Context, mgr *auth.Manager) int {
	keys, err := mgr.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vvtts-keys: %v\n", err)
		return 1
	}
	if len(keys) == 0 {
		fmt.Println("No API keys.")
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY ID\tNAME\tCREATED\tREQUESTS\tAUDIO SECONDS")
	for _, k := range keys {
		created := time.Unix(int64(k.CreatedAt), 0).UTC().Format("2006-01-02 15:04")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\n", k.KeyID, k.Name, created, k.RequestsCount, k.AudioSeconds)
	}
	tw.Flush()
	return 0
}

func cmdDelete(ctx context.Context, mgr *auth.Manager, args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "key_id of the credential to delete")
	fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "vvtts-keys: delete requires -id")
		return 2
	}

	deleted, err := mgr.Delete(ctx, *id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vvtts-keys: %v\n", err)
		return 1
	}
	if !deleted {
		fmt.Fprintf(os.Stderr, "vvtts-keys: no key with id %q\n", *id)
		return 1
	}
	fmt.Printf("Deleted key %s\n", *id)
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: vvtts-keys <command> [flags]

Commands:
  create -name <name>   create a credential and print the secret once
  list                  list credentials with usage counters
  delete -id <key_id>   delete a credential

The broker is taken from BROKER_URL (default redis://localhost:6379/0).`)
}
