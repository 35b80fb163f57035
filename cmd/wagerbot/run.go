package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alejandrodnm/wagerbot/internal/adapters/auth"
	"github.com/alejandrodnm/wagerbot/internal/adapters/discord"
	"github.com/alejandrodnm/wagerbot/internal/adapters/memory"
	"github.com/alejandrodnm/wagerbot/internal/commands"
	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/wager"
	"golang.org/x/sync/errgroup"
)

const consoleActor = "console"

// runDiscord conecta REST + gateway y corre scheduler y gateway en paralelo.
func runDiscord(ctx context.Context, a *app) error {
	if a.cfg.Discord.Token == "" {
		return fmt.Errorf("discord token missing: set DISCORD_TOKEN or use -dry-run")
	}

	client := discord.NewClient(a.cfg.Discord.Token, a.cfg.Discord.APIBase, a.formatter)
	selfID, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("discord identity: %w", err)
	}
	slog.Info("discord authenticated", "self_id", selfID)

	gateway := discord.NewGateway(a.cfg.Discord.GatewayURL, a.cfg.Discord.Token)

	svc := wager.NewService(wager.Deps{
		Storage:   a.store,
		Platform:  client,
		Notifier:  client,
		Publisher: a.publisher,
		Presenter: a.formatter,
		Lease:     a.lease,
		Odds:      a.odds,
		Scheduler: a.scheduler,
	})
	svc.Normalizer.Subscribe(gateway)

	allow := auth.NewAllowlist(a.cfg.Auth.Users, a.cfg.Auth.Roles)
	if err := allow.WithStore(ctx, a.store); err != nil {
		return err
	}
	if allow.Empty() {
		slog.Warn("auth allowlist is empty: nobody can create, lock or settle wagers")
	}
	cmds := commands.New(commands.Config{Location: a.loc, TopN: 10}, svc, allow, client, a.formatter, nil)
	cmds.Subscribe(gateway)

	// tras cada reconexión se recuperan los votos perdidos
	gateway.OnReady(func(ctx context.Context, id string) {
		client.SetSelfID(id)
		if err := svc.Normalizer.ResyncOpen(ctx); err != nil {
			slog.Warn("resync after ready failed", "err", err)
		}
	})

	if err := svc.Start(ctx); err != nil {
		return err
	}

	if a.scheduler.Once {
		if err := svc.Run(ctx); err != nil {
			return err
		}
		return printOpen(ctx, a, svc)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gateway.Run(gctx) })
	g.Go(func() error { return svc.Run(gctx) })
	return g.Wait()
}

// runDryRun usa la plataforma en memoria y lee comandos de stdin:
//
//	!bet ... / !winner ... / !top   comandos del bot (actor "console")
//	+ <wager> <user> <token>        el usuario reacciona
//	- <wager> <user> <token>        el usuario quita la reacción
func runDryRun(ctx context.Context, a *app) error {
	platform := memory.NewPlatform()

	svc := wager.NewService(wager.Deps{
		Storage:   a.store,
		Platform:  platform,
		Notifier:  a.console,
		Publisher: a.publisher,
		Presenter: a.formatter,
		Lease:     a.lease,
		Odds:      a.odds,
		Scheduler: a.scheduler,
	})
	svc.Normalizer.Subscribe(platform)

	allow := auth.NewAllowlist(append([]string{consoleActor}, a.cfg.Auth.Users...), a.cfg.Auth.Roles)
	if err := allow.WithStore(ctx, a.store); err != nil {
		return err
	}
	cmds := commands.New(commands.Config{Location: a.loc, TopN: 10}, svc, allow, stdoutReplier{w: os.Stdout}, a.formatter, nil)
	cmds.Subscribe(platform)

	if err := svc.Start(ctx); err != nil {
		return err
	}

	if a.scheduler.Once {
		if err := svc.Run(ctx); err != nil {
			return err
		}
		return printOpen(ctx, a, svc)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return readConsole(gctx, os.Stdin, platform) })
	return g.Wait()
}

// readConsole traduce las líneas de stdin en comandos y reacciones simuladas.
// Termina con EOF o al cancelar el contexto.
func readConsole(ctx context.Context, r io.Reader, p *memory.Platform) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			consoleLine(ctx, p, strings.TrimSpace(line))
		}
	}
}

func consoleLine(ctx context.Context, p *memory.Platform, line string) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 0:
	case strings.HasPrefix(line, "!"):
		p.Say(ctx, "console", domain.Actor{ID: consoleActor}, line)
	case (fields[0] == "+" || fields[0] == "-") && len(fields) == 4:
		var err error
		if fields[0] == "+" {
			err = p.React(ctx, fields[1], fields[2], fields[3])
		} else {
			err = p.Unreact(ctx, fields[1], fields[2], fields[3])
		}
		if err != nil {
			slog.Warn("console reaction failed", "err", err)
		}
	default:
		fmt.Println("expected !command, '+ wager user token' or '- wager user token'")
	}
}

func printOpen(ctx context.Context, a *app, svc *wager.Service) error {
	ws, err := svc.List(ctx, false)
	if err != nil {
		return err
	}
	a.console.PrintWagers(ws, a.odds)
	return nil
}

// stdoutReplier imprime las respuestas de los comandos en modo dry-run.
type stdoutReplier struct {
	w io.Writer
}

func (r stdoutReplier) SendMessage(_ context.Context, venue, content string) error {
	_, err := fmt.Fprintf(r.w, "[%s] %s\n", venue, content)
	return err
}
