package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/mnflix/mnflix-cli/internal/api"
	"github.com/mnflix/mnflix-cli/internal/captions"
	"github.com/mnflix/mnflix-cli/internal/catalog"
	"github.com/mnflix/mnflix-cli/internal/config"
	"github.com/mnflix/mnflix-cli/internal/database"
	"github.com/mnflix/mnflix-cli/internal/history"
	"github.com/mnflix/mnflix-cli/internal/media"
	"github.com/mnflix/mnflix-cli/internal/playback"
	"github.com/mnflix/mnflix-cli/internal/player"
	"github.com/mnflix/mnflix-cli/internal/player/mpv"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
	// Global flags
	cfgFile   string
	logLevel  string
	noColor   bool
	debugMode bool

	// Global config, logger and database handle
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mnflix",
	Short: "Watch movies and TV shows from the MNFLIX backend in mpv",
	Long: `mnflix plays movies and TV shows served by an MNFLIX backend through
a local mpv instance.

It fetches the per-provider stream catalog for a title, aggregates
subtitle tracks across sources, and falls back between stream
candidates automatically when one fails to play.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for config init command
		if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return nil
		}

		if err := config.InitializeDirs(); err != nil {
			return fmt.Errorf("failed to initialize directories: %w", err)
		}

		var err error
		var vp *viper.Viper
		cfg, vp, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if debugMode {
			cfg.Advanced.Debug = true
			if logLevel == "" {
				cfg.Logging.Level = "debug"
			}
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if noColor {
			cfg.Logging.Color = false
		}

		logger, err = config.InitLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if cfg.Advanced.Debug {
			// Debug runs want the log stream on the terminal instead
			// of the rotated file.
			logger = config.NewConsoleLogger(&cfg.Logging)
			slog.SetDefault(logger)
		}

		db, err = database.Init(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		// Hot reload for log level and provider ordering
		vp.WatchConfig()
		vp.OnConfigChange(func(e fsnotify.Event) {
			logger.Info("config file changed", "name", e.Name)
			if err := vp.Unmarshal(cfg); err != nil {
				logger.Error("failed to reload config", "error", err)
			}
		})

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			if err := database.Close(db); err != nil && logger != nil {
				logger.Error("failed to close database", "error", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/mnflix/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug mode (verbose HTTP logging)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(historyCmd)
}

// versionCmd displays version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mnflix version %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

// configCmd handles configuration operations
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}

		if err := config.WriteDefault(configPath); err != nil {
			return err
		}

		fmt.Printf("Default configuration generated at: %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Backend: %s\n", cfg.API.BaseURL)
		fmt.Printf("Provider priority: %s\n", strings.Join(cfg.Providers.Priority, ", "))
		fmt.Printf("Fallback provider: %s\n", cfg.Providers.Fallback)
		fmt.Printf("Preferred subtitle language: %s\n", cfg.Subtitles.PreferredLanguage)
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		fmt.Printf("Log level: %s\n", cfg.Logging.Level)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Display configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			fmt.Println(cfgFile)
			return
		}
		fmt.Println(config.DefaultConfigPath())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

// playCmd plays a movie or an episode
var playCmd = &cobra.Command{
	Use:   "play <content-id>",
	Short: "Play a movie or TV episode",
	Long: `Play a movie or TV episode through mpv.

For episodes, pass --season and --episode. While playing, the terminal
accepts commands to switch provider, quality or captions; type "help"
for the list.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contentID := args[0]
		season, _ := cmd.Flags().GetInt("season")
		episode, _ := cmd.Flags().GetInt("episode")
		providerFlag, _ := cmd.Flags().GetString("provider")

		client := api.NewClient(cfg, logger)
		fetcher := catalog.NewFetcher(client, cfg.Providers.Priority, logger)

		engine, err := mpv.NewEngine(cfg, logger)
		if err != nil {
			return err
		}

		store := database.NewSettingsStore(db)
		prefs := media.LoadSessionPrefs(store, cfg.Subtitles.PreferredLanguage, logger)
		progress := history.NewService(db)

		session := playback.NewSession(playback.Params{
			Fetcher:          fetcher,
			Metadata:         client,
			Engine:           engine,
			Cache:            media.NewCache(),
			Prefs:            prefs,
			Reporter:         client,
			Progress:         progress,
			FallbackProvider: cfg.Providers.Fallback,
			BaseURL:          client.BaseURL(),
			Logger:           logger,
		})

		events := make(chan playback.Event, 16)
		session.OnEvent(func(ev playback.Event) {
			select {
			case events <- ev:
			default:
			}
		})

		ctx := cmd.Context()
		id := media.Resolve(media.PlayRequest{
			ID:      contentID,
			Season:  season,
			Episode: episode,
		})

		logger.Info("starting playback", "content", id.String())
		if err := session.Load(ctx, id); err != nil {
			if perr, ok := err.(*playback.Error); ok {
				fmt.Fprintln(os.Stderr, perr.Message())
			}
			_ = session.Close(ctx)
			return err
		}

		if meta := session.Meta(); meta != nil {
			if meta.Episode > 0 {
				fmt.Printf("Playing: %s S%02dE%02d - %s\n", meta.Title, meta.Season, meta.Episode, meta.EpisodeTitle)
			} else {
				fmt.Printf("Playing: %s (%d)\n", meta.Title, meta.Year)
			}
		}

		if providerFlag != "" {
			if name, ok := matchProvider(session.Providers(), providerFlag); ok {
				if err := session.SelectProvider(ctx, name); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to switch provider: %v\n", err)
				} else {
					fmt.Printf("Provider: %s\n", name)
				}
			} else {
				fmt.Fprintf(os.Stderr, "No provider matching %q; available: %s\n",
					providerFlag, strings.Join(session.Providers(), ", "))
			}
		}

		err = runPlaybackLoop(ctx, session, events)
		_ = session.Close(context.Background())
		return err
	},
}

// runPlaybackLoop multiplexes engine events and terminal commands until
// playback finishes or a terminal error stands.
func runPlaybackLoop(ctx context.Context, session *playback.Session, events <-chan playback.Event) error {
	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- strings.TrimSpace(scanner.Text())
		}
		close(input)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-events:
			if ev.Err != nil {
				fmt.Fprintln(os.Stderr, ev.Err.Message())
				if ev.Err.Retryable() {
					fmt.Fprintln(os.Stderr, `Type "retry" to try again, "providers" to list alternatives, or "quit".`)
					continue
				}
				return ev.Err
			}
			switch ev.Status {
			case player.StatusEnded:
				fmt.Println("Playback finished.")
				return nil
			case player.StatusIdle:
				return nil
			}

		case line, ok := <-input:
			if !ok {
				// stdin closed; keep playing until the engine finishes
				input = nil
				continue
			}
			if done, err := handleCommand(ctx, session, line); done {
				return err
			}
		}
	}
}

// handleCommand executes one terminal command; done means the loop
// should exit.
func handleCommand(ctx context.Context, session *playback.Session, line string) (done bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "help":
		fmt.Println(`Commands:
  providers             list available providers
  provider <name>       switch provider (fuzzy matched)
  qualities             list qualities of the current provider
  quality <label>       switch quality (e.g. 720p)
  captions              list caption tracks
  caption <id|off>      display a caption track, or disable captions
  next <season> <ep>    jump to another episode
  retry                 retry after a failure
  quit                  stop playback and exit`)

	case "providers":
		provider, _ := session.Selection()
		for _, name := range session.Providers() {
			marker := " "
			if name == provider {
				marker = "*"
			}
			fmt.Printf(" %s %s\n", marker, name)
		}

	case "provider":
		if len(fields) < 2 {
			fmt.Println("Usage: provider <name>")
			return false, nil
		}
		name, ok := matchProvider(session.Providers(), fields[1])
		if !ok {
			fmt.Printf("No provider matching %q\n", fields[1])
			return false, nil
		}
		if err := session.SelectProvider(ctx, name); err != nil {
			fmt.Printf("Failed to switch provider: %v\n", err)
			return false, nil
		}
		fmt.Printf("Provider: %s\n", name)

	case "qualities":
		provider, quality := session.Selection()
		fmt.Printf("Provider %s, current quality %s\n", provider, quality)

	case "quality":
		if len(fields) < 2 {
			fmt.Println("Usage: quality <label>")
			return false, nil
		}
		q := catalog.MapQuality(fields[1])
		if err := session.SelectQuality(ctx, q); err != nil {
			fmt.Printf("Failed to switch quality: %v\n", err)
			return false, nil
		}
		fmt.Printf("Quality: %s\n", q)

	case "captions":
		tracks := session.Captions()
		if len(tracks) == 0 {
			fmt.Println("No caption tracks available")
			return false, nil
		}
		for _, t := range tracks {
			fmt.Printf("  %-24s %-4s %s\n", t.ID, t.Language, t.DisplayLabel)
		}

	case "caption":
		if len(fields) < 2 {
			fmt.Println("Usage: caption <id|off>")
			return false, nil
		}
		id := fields[1]
		if id == "off" {
			id = ""
		}
		if err := session.SelectCaption(id); err != nil {
			fmt.Printf("Failed to select caption: %v\n", err)
		}

	case "next":
		if len(fields) < 3 {
			fmt.Println("Usage: next <season> <episode>")
			return false, nil
		}
		season, err1 := strconv.Atoi(fields[1])
		episode, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			fmt.Println("Usage: next <season> <episode>")
			return false, nil
		}
		if err := session.AdvanceEpisode(ctx, season, episode); err != nil {
			fmt.Printf("Failed to change episode: %v\n", err)
			return false, nil
		}
		if meta := session.Meta(); meta != nil {
			fmt.Printf("Playing: %s S%02dE%02d - %s\n", meta.Title, meta.Season, meta.Episode, meta.EpisodeTitle)
		}

	case "retry":
		if err := session.Retry(ctx); err != nil {
			if perr, ok := err.(*playback.Error); ok {
				fmt.Fprintln(os.Stderr, perr.Message())
			} else {
				fmt.Fprintf(os.Stderr, "Retry failed: %v\n", err)
			}
		}

	case "quit", "q", "exit":
		return true, nil

	default:
		fmt.Printf("Unknown command %q; type \"help\"\n", fields[0])
	}
	return false, nil
}

// matchProvider resolves a user-typed provider name against the catalog
// with fuzzy matching.
func matchProvider(available []string, query string) (string, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	for _, name := range available {
		if name == query {
			return name, true
		}
	}
	matches := fuzzy.Find(query, available)
	if len(matches) == 0 {
		return "", false
	}
	return available[matches[0].Index], true
}

// catalogCmd inspects the stream catalog without playing anything
var catalogCmd = &cobra.Command{
	Use:   "catalog <content-id>",
	Short: "Show the provider catalog and caption tracks for a title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contentID := args[0]
		season, _ := cmd.Flags().GetInt("season")
		episode, _ := cmd.Flags().GetInt("episode")

		client := api.NewClient(cfg, logger)
		fetcher := catalog.NewFetcher(client, cfg.Providers.Priority, logger)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		var hints *api.SeriesHints
		var embedded []api.RawSubtitle
		if season > 0 || episode > 0 {
			show, err := client.GetShow(ctx, contentID)
			if err != nil {
				return fmt.Errorf("failed to get show metadata: %w", err)
			}
			hints = &api.SeriesHints{
				Title:   show.Title,
				Year:    yearOf(show.FirstAirDate),
				Season:  season,
				Episode: episode,
			}
			embedded = show.SubtitleTracks
			fmt.Printf("%s S%02dE%02d\n\n", show.Title, season, episode)
		} else {
			movie, err := client.GetMovie(ctx, contentID)
			if err != nil {
				return fmt.Errorf("failed to get movie metadata: %w", err)
			}
			embedded = movie.SubtitleTracks
			fmt.Printf("%s (%d)\n\n", movie.Title, yearOf(movie.ReleaseDate))
		}

		cat, providerSubs, err := fetcher.FetchCatalog(ctx, contentID, hints)
		if err != nil {
			return err
		}

		fmt.Printf("Providers (%d):\n", len(cat.Groups))
		for _, group := range cat.Groups {
			labels := make([]string, len(group.Qualities))
			for i, q := range group.Qualities {
				labels[i] = q.String()
			}
			fallback := ""
			if group.Provider == cfg.Providers.Fallback {
				fallback = fmt.Sprintf("  [%d fallback candidates]", len(group.Streams))
			}
			fmt.Printf("  %-10s %s%s\n", group.Provider, strings.Join(labels, ", "), fallback)
		}

		tracks := captions.Aggregate(embedded, providerSubs, client.BaseURL())
		fmt.Printf("\nCaption tracks (%d):\n", len(tracks))
		for _, t := range tracks {
			fmt.Printf("  %-24s %-4s %s\n", t.ID, t.Language, t.DisplayLabel)
		}
		return nil
	},
}

// historyCmd lists watch history
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently watched titles",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := history.NewService(db).List(limit)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No watch history yet")
			return nil
		}

		for _, entry := range entries {
			title := entry.Title
			if entry.Season > 0 || entry.Episode > 0 {
				title = fmt.Sprintf("%s S%02dE%02d", title, entry.Season, entry.Episode)
			}
			state := fmt.Sprintf("%.0f%%", entry.ProgressPercent)
			if entry.Completed {
				state = "finished"
			}
			fmt.Printf("  %-50s %-10s %-10s %s\n",
				title, entry.Provider, state, humanize.Time(entry.WatchedAt))
		}
		return nil
	},
}

func init() {
	playCmd.Flags().IntP("season", "s", 0, "season number (TV only)")
	playCmd.Flags().IntP("episode", "e", 0, "episode number (TV only)")
	playCmd.Flags().StringP("provider", "p", "", "provider to start with (fuzzy matched)")

	catalogCmd.Flags().IntP("season", "s", 0, "season number (TV only)")
	catalogCmd.Flags().IntP("episode", "e", 0, "episode number (TV only)")

	historyCmd.Flags().IntP("limit", "n", 20, "number of entries to show")
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
