// chatctl is a terminal client for the room chat server. It mints
// development tokens, lists and opens rooms, sends messages, and tails a
// room live.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type command struct {
	summary string
	usage   string
	run     func(ctx context.Context, g *globals, args []string, out io.Writer) error
}

var commands = map[string]command{
	"token":  {"mint a development token", "token --user <id> [--secret s] [--issuer i] [--ttl d]", runToken},
	"me":     {"show the caller's profile", "me", runMe},
	"rooms":  {"list your rooms", "rooms", runRooms},
	"create": {"create a group room", "create <name>", runCreate},
	"dm":     {"open a direct room with a user", "dm <user-id>", runDirect},
	"rename": {"rename a room", "rename <room-id> <name>", runRename},
	"search": {"search users", "search <query>", runSearch},
	"send":   {"send a message", "send <room-id> <text>", runSend},
	"tail":   {"print recent history and follow a room live", "tail <room-id> [--limit n]", runTail},
}

var commandOrder = []string{"token", "me", "rooms", "create", "dm", "rename", "search", "send", "tail"}

type globals struct {
	server string
	token  string
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var g globals

	flagSet := pflag.NewFlagSet("chatctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&g.server, "server", envOr("CHAT_SERVER", "http://localhost:8080"), "server base URL (CHAT_SERVER)")
	flagSet.StringVar(&g.token, "token", os.Getenv("CHAT_TOKEN"), "bearer token (CHAT_TOKEN)")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet)
		return pflag.ErrHelp
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}
	if err := cmd.run(ctx, &g, rest[1:], out); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: chatctl %s", cmd.usage)
		}
		return err
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `chatctl talks to a room chat server.

Usage:
  chatctl [flags] <command> [args]

Commands:
`)
	for _, name := range commandOrder {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
