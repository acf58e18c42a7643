package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/michigantokenizers/skl-client/authapi"
	"github.com/michigantokenizers/skl-client/internal/config"
	"github.com/michigantokenizers/skl-client/routeguard"
	"github.com/michigantokenizers/skl-client/session"
	"github.com/michigantokenizers/skl-client/store/filestore"
	"github.com/michigantokenizers/skl-client/wallet/bridge"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running client: %s\n", err)
	}
	log.Printf("Client stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	displayAppname(cfg.AppName)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(cfg.ZerologLevel()).
		With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api, err := authapi.New(authapi.Config{BaseURL: cfg.APIBaseURL})
	if err != nil {
		return err
	}

	sessions, err := filestore.New(cfg.SessionFile)
	if err != nil {
		return err
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	source, err := bridge.Dial(dialCtx, cfg.WalletBridgeURL, logger)
	dialCancel()
	if err != nil {
		return err
	}
	defer source.Close()

	controller, err := session.New(ctx, api, sessions, source, session.WithLogger(logger))
	if err != nil {
		return err
	}
	defer controller.Close()

	snapshots, unsubscribe := controller.Subscribe()
	defer unsubscribe()
	go followRoutes(logger, snapshots)

	controller.Start()
	waitForStopSignal()
	return nil
}

// followRoutes drives the route guard from state snapshots, standing in for
// the UI layer.
func followRoutes(logger zerolog.Logger, snapshots <-chan session.Snapshot) {
	current := routeguard.RouteRoot
	for snap := range snapshots {
		decision := routeguard.Decide(snap, current)
		logger.Info().
			Str("phase", string(snap.Phase)).
			Str("decision", string(decision)).
			Str("league", snap.SelectedLeagueID).
			Msg("route decision")

		switch decision {
		case routeguard.RedirectToAssociation:
			current = routeguard.RouteAssociation
		case routeguard.RedirectToLeague:
			current = routeguard.RouteLeague
		case routeguard.RedirectToRoot, routeguard.AllowRoot:
			current = routeguard.RouteRoot
		}
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
