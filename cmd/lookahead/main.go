package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/catalog"
	"github.com/osa030/lookahead/internal/app/filter"
	"github.com/osa030/lookahead/internal/app/search"
	"github.com/osa030/lookahead/internal/app/session"
	"github.com/osa030/lookahead/internal/infra/config"
	"github.com/osa030/lookahead/internal/infra/logger"
	"github.com/osa030/lookahead/internal/infra/musicserver"
)

var (
	app        = kingpin.New("lookahead", "Prefetching playback queue for a remote music server")
	configPath = app.Flag("config", "Path to config file").Default("config/lookahead.yaml").String()
	verbose    = app.Flag("verbose", "Enable debug logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Write logs to file instead of stderr").String()

	startCmd = app.Command("start", "Start a session with the interactive console (default)").Default()
	speed    = startCmd.Flag("speed", "Speed factor of the simulated audio output").Default("1").Float64()

	searchCmd      = app.Command("search", "Rank the catalog against a query and exit")
	searchQuery    = searchCmd.Arg("query", "Search query").Required().String()
	searchPlaylist = searchCmd.Flag("playlist", "Restrict results to a playlist").Default(search.AllPlaylists).String()

	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.Config{
		Output:     "stderr",
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logfile != "" {
		logCfg.Output = "file"
		logCfg.File = *logfile
	}
	closer, err := logger.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	client, err := musicserver.New(musicserver.Config{
		URL:     cfg.Server.URL,
		Token:   cfg.Server.Token,
		Timeout: cfg.Server.Timeout(),
	})
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to create music server client")
		os.Exit(1)
	}

	switch command {
	case searchCmd.FullCommand():
		err = runSearch(cfg, client)
	default:
		err = run(cfg, client)
	}
	if err != nil {
		zlog.Error().Err(err).Msg("Command failed")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, client *musicserver.Client) error {
	sessionMgr, err := session.NewManager(cfg, client)
	if err != nil {
		return err
	}
	defer sessionMgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := sessionMgr.Start(ctx); err != nil {
		return err
	}

	output := newPlayer(sessionMgr, *speed)
	defer output.Close()
	output.Start()

	cli := newConsole(sessionMgr, os.Stdout)
	subID := sessionMgr.Subscribe(cli)
	defer sessionMgr.Unsubscribe(subID)

	zlog.Info().Msgf("Session started: session_id=%s", sessionMgr.SessionID())
	fmt.Println("Type 'help' for the list of commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("Received shutdown signal")
			return nil
		case <-sessionMgr.Done():
			zlog.Info().Msg("Session ended")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := cli.Execute(ctx, line)
			if err != nil {
				cli.printf("Error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func runSearch(cfg *config.Config, client *musicserver.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout())
	defer cancel()

	repo, err := catalog.Load(ctx, client)
	if err != nil {
		return err
	}

	n := 0
	for r := range search.Rank(repo.Tracks(), *searchPlaylist, *searchQuery) {
		n++
		fmt.Printf("%3d. %-60s %6s  score=%d  %s\n",
			n, r.Track.DisplayTitle(), formatDuration(r.Track.Duration), r.Score, r.Track.Path)
		if n >= cfg.Queue.MaxSearchResults {
			break
		}
	}
	fmt.Printf("%s matches in %s tracks\n", humanize.Comma(int64(n)), humanize.Comma(int64(repo.Len())))
	return nil
}

func printFilters() {
	registry := filter.GetRegistered()
	fmt.Println("Available filters:")
	fmt.Println()
	for _, name := range filter.RegisteredNames() {
		f := registry[name](filter.Dependencies{})
		fmt.Printf("  %s\n", f.Name())
		fmt.Printf("    Description: %s\n", f.Description())
		fmt.Printf("    Return codes: %v\n", f.ReturnCodes())
		fmt.Println()
	}
}
