package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/lastview/internal/config"
	"github.com/abelbrown/lastview/internal/coord"
	"github.com/abelbrown/lastview/internal/debughttp"
	"github.com/abelbrown/lastview/internal/feed"
	"github.com/abelbrown/lastview/internal/logging"
	"github.com/abelbrown/lastview/internal/metrics"
	"github.com/abelbrown/lastview/internal/otel"
	"github.com/abelbrown/lastview/internal/presenter"
	"github.com/abelbrown/lastview/internal/scrollpos"
	"github.com/abelbrown/lastview/internal/ui"
)

// feedKeys are the timelines tab cycles through.
var feedKeys = []string{"home", "lists/1"}

func main() {
	configPath := flag.String("config", "", "config file (default ~/.lastview/config.json)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "timeline: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	if err := logging.Init(cfg.DataDir); err != nil {
		return err
	}
	defer logging.Close()

	eventFile, err := os.OpenFile(cfg.EventLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer eventFile.Close()
	events := otel.NewLogger(eventFile)
	defer events.Close()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics.MustRegister(reg)

	db, err := scrollpos.Open(cfg.Database())
	if err != nil {
		return fmt.Errorf("open position store: %w", err)
	}
	defer db.Close()

	var positions scrollpos.Repository = db
	if cfg.Cache.RedisAddr != "" {
		client := scrollpos.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
		defer client.Close()
		positions = scrollpos.NewCache(db, client, cfg.Cache.TTL(), events)
		logging.Info("position cache enabled", "addr", cfg.Cache.RedisAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys := orderFeeds(cfg.FeedKey)
	pagers := make(map[string]*feed.Pager, len(keys))
	for i, key := range keys {
		src := feed.NewSyntheticSource(feed.SyntheticOptions{
			Initial: 400 + 150*i,
			Every:   2 * time.Minute,
			Latency: 80 * time.Millisecond,
		})
		pagers[key] = feed.NewPager(ctx, src, feed.PagerOptions{
			FeedKey:        key,
			PageSize:       cfg.Feed.PageSize,
			PagesPerSecond: cfg.Feed.PagesPerSecond,
			MaxAnchorPages: cfg.Feed.MaxAnchorPages,
			Anchor:         anchorFor(positions, key),
			Log:            events,
		})
	}
	defer func() {
		for _, p := range pagers {
			p.Close()
		}
	}()

	active := keys[0]
	scroller := ui.NewScroller()
	pres := presenter.New(active, pagers[active], positions, scroller, presenter.Options{
		ConfirmTimeout:   cfg.Restore.ConfirmTimeout(),
		CaptureSettle:    cfg.Restore.CaptureSettle(),
		PrefetchDistance: cfg.Restore.PrefetchDistance,
		MaxScanned:       cfg.Restore.ScanCeiling,
		Log:              events,
		OnChange: func(s presenter.State) {
			logging.Debug("presenter state",
				"feed", s.FeedKey, "restore", s.Restore, "indicator", s.ShowIndicator, "unseen", s.UnseenCount)
		},
	})

	coordinator := coord.New(cfg.Feed.PrependInterval(), events)
	coordinator.Watch(active, pagers[active])

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := pres.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	coordinator.Start(gctx)

	if cfg.Debug.Addr != "" {
		srv := debughttp.New(debughttp.Options{
			Gatherer: reg,
			Events:   ring,
			State:    func() any { return pres.State() },
		})
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, cfg.Debug.Addr); err != nil {
				logging.Error("debug server stopped", "addr", cfg.Debug.Addr, "err", err)
			}
			return nil
		})
	}

	pagers[active].Refresh()

	switchFeed := func(key string) tea.Cmd {
		return func() tea.Msg {
			p, ok := pagers[key]
			if !ok {
				return ui.FeedSwitched{Key: key, Err: fmt.Errorf("unknown feed %q", key)}
			}
			if err := pres.SwitchFeed(gctx, key, p); err != nil {
				return ui.FeedSwitched{Key: key, Err: err}
			}
			for k := range pagers {
				coordinator.Unwatch(k)
			}
			coordinator.Watch(key, p)
			p.Refresh()
			logging.Info("switched feed", "feed", key)
			return ui.FeedSwitched{Key: key, Feed: p}
		}
	}

	app := ui.NewApp(ui.AppConfig{
		Presenter:  pres,
		Feed:       pagers[active],
		FeedKey:    active,
		Feeds:      keys,
		SwitchFeed: switchFeed,
		Scroller:   scroller,
		Ring:       ring,
	})

	logging.Info("timeline starting", "feed", active, "db", cfg.Database())
	program := tea.NewProgram(app, tea.WithAltScreen())
	_, runErr := program.Run()

	// Cancelling stops Run with a teardown capture; Close waits for the
	// write so it lands before the store closes.
	cancel()
	pres.Close()
	coordinator.Wait()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	logging.Info("timeline stopped")
	return runErr
}

// orderFeeds puts the configured feed first.
func orderFeeds(first string) []string {
	keys := []string{first}
	for _, k := range feedKeys {
		if k != first {
			keys = append(keys, k)
		}
	}
	return keys
}

// anchorFor returns the saved item key for feedKey, so a refresh can load
// far enough to include it.
func anchorFor(positions scrollpos.Repository, feedKey string) func(context.Context) string {
	return func(ctx context.Context) string {
		pos, err := positions.Get(ctx, feedKey)
		if errors.Is(err, scrollpos.ErrNotFound) {
			return ""
		}
		if err != nil {
			logging.Warn("anchor lookup failed", "feed", feedKey, "err", err)
			return ""
		}
		if !pos.Valid() {
			return ""
		}
		return pos.LastViewedItemID
	}
}
