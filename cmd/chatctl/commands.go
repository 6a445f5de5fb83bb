package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"room_chat/pkg/client"
	"room_chat/pkg/jwt"
)

var errUsage = errors.New("usage")

func (g *globals) client() (*client.Client, error) {
	if g.token == "" {
		return nil, errors.New("no token: pass --token or set CHAT_TOKEN")
	}
	return client.New(g.server, g.token, nil), nil
}

func runToken(_ context.Context, _ *globals, args []string, out io.Writer) error {
	var (
		userID string
		secret string
		issuer string
		ttl    time.Duration
	)
	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flagSet.StringVar(&userID, "user", "", "user id to put in the token subject")
	flagSet.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret (JWT_SECRET)")
	flagSet.StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "room-chat"), "token issuer (JWT_ISSUER)")
	flagSet.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if userID == "" || secret == "" {
		return errUsage
	}

	token, err := jwt.GenerateToken(userID, secret, issuer, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runMe(ctx context.Context, g *globals, args []string, out io.Writer) error {
	c, err := g.client()
	if err != nil {
		return err
	}
	me, err := c.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\t%s\n", me.ID, me.Name())
	return nil
}

func runRooms(ctx context.Context, g *globals, args []string, out io.Writer) error {
	c, err := g.client()
	if err != nil {
		return err
	}
	rooms, err := c.ListRooms(ctx)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		fmt.Fprintf(out, "%s\t%s\t%s\n", room.ID, room.Name, room.LastActivityAt.Local().Format(time.DateTime))
	}
	return nil
}

func runCreate(ctx context.Context, g *globals, args []string, out io.Writer) error {
	c, err := g.client()
	if err != nil {
		return err
	}
	room, err := c.CreateRoom(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\t%s\n", room.ID, room.Name)
	return nil
}

func runDirect(ctx context.Context, g *globals, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	room, err := c.OpenDirect(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\t%s\n", room.ID, room.Name)
	return nil
}

func runRename(ctx context.Context, g *globals, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	room, err := c.Rename(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\t%s\n", room.ID, room.Name)
	return nil
}

func runSearch(ctx context.Context, g *globals, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	users, err := c.SearchUsers(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(out, "%s\t%s\n", u.ID, u.Name())
	}
	return nil
}

func runSend(ctx context.Context, g *globals, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	msg, err := c.Send(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, msg.ID)
	return nil
}

func runTail(ctx context.Context, g *globals, args []string, out io.Writer) error {
	var limit int
	flagSet := pflag.NewFlagSet("tail", pflag.ContinueOnError)
	flagSet.IntVar(&limit, "limit", 30, "history messages to print first")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errUsage
	}
	roomID := flagSet.Arg(0)

	c, err := g.client()
	if err != nil {
		return err
	}
	stream, err := client.DialClient(ctx, c)
	if err != nil {
		return err
	}
	defer stream.Close()

	printer := &tailPrinter{out: out}
	conv := client.NewConversation(c, stream, client.ConversationOptions{
		HistoryLimit: limit,
		OnChange:     printer.update,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- conv.Run(runCtx) }()

	if err := conv.Open(ctx, roomID); err != nil {
		return err
	}

	err = <-done
	if errors.Is(err, context.Canceled) || errors.Is(err, client.ErrStreamClosed) {
		return nil
	}
	return err
}

// tailPrinter prints each message of a timeline once, in timeline order.
type tailPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]struct{}
}

func (p *tailPrinter) update(messages []client.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.printed == nil {
		p.printed = make(map[string]struct{})
	}
	for _, m := range messages {
		if _, ok := p.printed[m.ID]; ok {
			continue
		}
		p.printed[m.ID] = struct{}{}
		fmt.Fprintf(p.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.Sender.Name(), m.Text)
	}
}
