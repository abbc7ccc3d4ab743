// PlayClaw — a real-time game-playing agent. A capture loop records the
// emulator display into a rolling buffer, the control loop turns clips of
// it into button presses via a multimodal model, and everything observable
// flows through one message bus to the dashboard, archive, and notifiers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grvsrs/playclaw/pkg/api"
	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/capture"
	"github.com/grvsrs/playclaw/pkg/config"
	"github.com/grvsrs/playclaw/pkg/console"
	"github.com/grvsrs/playclaw/pkg/control"
	"github.com/grvsrs/playclaw/pkg/cron"
	"github.com/grvsrs/playclaw/pkg/logger"
	"github.com/grvsrs/playclaw/pkg/notify"
	"github.com/grvsrs/playclaw/pkg/persistence"
	"github.com/grvsrs/playclaw/pkg/providers"
)

// stopTimeout bounds graceful shutdown; past it the supervisor's kill wins.
const stopTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "playclaw.yaml", "path to config file")
	consoleMode := flag.Bool("console", false, "run the interactive admin console")
	flag.Parse()

	if err := run(*configPath, *consoleMode); err != nil {
		fmt.Fprintln(os.Stderr, "playclaw:", err)
		os.Exit(1)
	}
}

func run(configPath string, consoleMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	messageBus := bus.New()
	defer messageBus.Shutdown()

	// --- Capture ---
	var source capture.FrameSource
	if cfg.Capture.SourceURL != "" {
		source = capture.NewHTTPSource(cfg.Capture.SourceURL)
	} else {
		logger.WarnC("main", "No capture source configured, using synthetic frames")
		source = capture.NewSyntheticSource(240, 160)
	}
	captureLoop := capture.NewLoop(source, capture.LoopConfig{
		FPS:           cfg.Capture.FPS,
		WindowSeconds: cfg.Capture.WindowSeconds,
		Extractor: capture.ExtractorConfig{
			MaxClipFrames:   cfg.Capture.MaxClipFrames,
			TargetWidth:     cfg.Capture.TargetWidth,
			MinFrameDelay:   time.Duration(cfg.Capture.MinFrameMS) * time.Millisecond,
			TargetDuration:  time.Duration(cfg.Capture.ClipDurationMS) * time.Millisecond,
			InitialLookback: time.Duration(cfg.Capture.InitialLookbackSeconds) * time.Second,
			GapCeiling:      time.Duration(cfg.Capture.GapCeilingSeconds) * time.Second,
		},
	})
	if err := captureLoop.Start(ctx); err != nil {
		return err
	}

	// --- Bus consumers ---
	if cfg.Archive.Enabled {
		archive, err := persistence.Open(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer archive.Close()
		if err := archive.Attach(messageBus); err != nil {
			return err
		}
	}

	if cfg.Notify.DiscordToken != "" {
		notifier, err := notify.NewDiscordNotifier(cfg.Notify.DiscordToken, cfg.Notify.DiscordChannel)
		if err != nil {
			return err
		}
		defer notifier.Close()
		if err := notifier.Attach(messageBus); err != nil {
			return err
		}
	}

	if cfg.HealthCron != "" {
		reporter, err := cron.NewHealthReporter(messageBus, captureLoop, cfg.HealthCron)
		if err != nil {
			return err
		}
		go reporter.Run(ctx)
	}

	// --- Dashboard ---
	server := api.NewServer(cfg.Gateway, messageBus, captureLoop)
	if err := server.Start(ctx); err != nil {
		return err
	}

	// --- Control ---
	provider, err := providers.New(cfg.Control.Provider, cfg.Control.APIKey, cfg.Control.APIBase)
	if err != nil {
		return err
	}
	controlLoop := control.New(
		captureLoop,
		control.NewLLMEngine(provider, cfg.Control.Model),
		messageBus,
		control.Config{
			Interval:       cfg.Control.Interval(),
			RequestTimeout: cfg.Control.RequestTimeout(),
		},
	)
	go controlLoop.Run(ctx)

	if err := messageBus.Publish(bus.NewSystem("main", "playclaw started", bus.LevelInfo)); err != nil {
		return err
	}

	if consoleMode {
		if err := console.New(messageBus, captureLoop).Run(ctx); err != nil {
			logger.WarnCF("main", "Console exited", map[string]interface{}{"err": err.Error()})
		}
		cancel()
	}

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		logger.WarnCF("main", "Dashboard stop failed", map[string]interface{}{"err": err.Error()})
	}
	if err := captureLoop.Stop(stopCtx); err != nil {
		logger.WarnCF("main", "Capture stop failed", map[string]interface{}{"err": err.Error()})
	}
	messageBus.Shutdown()
	return nil
}
