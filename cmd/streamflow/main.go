package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"streamflow/internal/config"
	"streamflow/internal/eventbus"
	"streamflow/internal/history"
	"streamflow/internal/services/statslog"
	"streamflow/internal/stream"
	logx "streamflow/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}
	mat, err := cfg.Build()
	if err != nil {
		return err
	}

	logSvc, log := logx.New(mat.Logging)
	defer logSvc.Close()
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	eng, err := stream.New(mat.Stream, bus, log.With(logx.String("comp", "stream")))
	if err != nil {
		return err
	}

	if st, err := history.Open(mat.History, log.With(logx.String("comp", "history"))); err != nil {
		return err
	} else if st != nil {
		defer st.Close()
		eng.SetStore(st)
		log.Info("history enabled", logx.String("driver", mat.History.Driver))
	}

	stats := statslog.New(mat.Stats, eng, log.With(logx.String("comp", "statslog")))
	if err := stats.Start(ctx); err != nil {
		return err
	}
	defer stats.Stop(context.Background())

	// Debug tap so operators can follow session events from the log.
	events, unsub := bus.Subscribe(256)
	defer unsub()
	go func() {
		for ev := range events {
			log.Debug("event", logx.String("type", ev.Type))
		}
	}()

	// Hot reload: the watcher publishes committed configs, we re-apply them.
	updates := cfgm.Subscribe(1)
	defer cfgm.Unsubscribe(updates)
	go func() { _ = cfgm.Watch(ctx) }()
	go func() {
		for nc := range updates {
			m, err := nc.Build()
			if err != nil {
				log.Warn("reload rejected", logx.Err(err))
				continue
			}
			logSvc.Apply(m.Logging)
			if err := eng.Apply(m.Stream); err != nil {
				log.Warn("stream config rejected", logx.Err(err))
				continue
			}
			log.Info("config reloaded")
		}
	}()

	log.Info("streamflow started", logx.String("config", cfgPath))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
