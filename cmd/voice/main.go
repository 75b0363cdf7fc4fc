// Command voice is the headless voice-channels client: it connects to the
// realtime presence backend, shows who is in which channel, and joins LiveKit
// rooms through the token service.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voicedeck/voicedeck/internal/app"
	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/domain"
	"github.com/voicedeck/voicedeck/internal/identity"
	"github.com/voicedeck/voicedeck/internal/presence"
	"github.com/voicedeck/voicedeck/internal/realtime"
	"github.com/voicedeck/voicedeck/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := identity.NewStore(cfg.IdentityFile)
	if err != nil {
		log.Fatal().Err(err).Msg("identity store")
	}
	user, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load identity")
	}
	fmt.Printf("you are %s\n", user.ID)

	rt, err := realtime.Dial(ctx, cfg.RealtimeURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.RealtimeURL).Msg("realtime dial")
	}
	defer rt.Close()

	names := roomNames(cfg.Rooms())
	sync := presence.NewSynchronizer(rt, user, func(roomID domain.RoomID, entries []domain.PresenceEntry) {
		fmt.Printf("[%s] %d online", names[roomID], len(entries))
		for _, e := range entries {
			fmt.Printf("  %s", e.Name)
		}
		fmt.Println()
	})

	details := session.NewHTTPDetails(cfg.DetailsEndpoint, "")
	manager := session.NewManager(details, session.NewLiveKitConnector(), user)
	voice := app.NewVoice(manager, sync, cfg.Rooms())
	voice.Start(ctx)
	defer voice.Stop(context.Background())

	repl(ctx, voice)
}

func repl(ctx context.Context, voice *app.Voice) {
	fmt.Println("commands: rooms | join <id> | leave | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "rooms":
			for _, r := range voice.Rooms() {
				fmt.Printf("  %-16s %s\n", r.ID, r.Name)
			}
		case "join":
			if len(fields) < 2 {
				fmt.Println("usage: join <room-id>")
				continue
			}
			if err := voice.Join(ctx, domain.RoomID(fields[1])); err != nil {
				if errors.Is(err, session.ErrJoinInProgress) {
					fmt.Println("still connecting, try again in a moment")
					continue
				}
				fmt.Printf("join failed: %v\n", err)
			}
		case "leave":
			voice.Leave()
		case "quit", "exit":
			return
		default:
			fmt.Println("commands: rooms | join <id> | leave | quit")
		}
	}
}

func roomNames(rooms []domain.Room) map[domain.RoomID]domain.RoomName {
	out := make(map[domain.RoomID]domain.RoomName, len(rooms))
	for _, r := range rooms {
		out[r.ID] = r.Name
	}
	return out
}
