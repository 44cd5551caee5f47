package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/wapipe/internal/blob"
	"github.com/nextlevelbuilder/wapipe/internal/config"
	"github.com/nextlevelbuilder/wapipe/internal/httpapi"
	"github.com/nextlevelbuilder/wapipe/internal/langgraph"
	"github.com/nextlevelbuilder/wapipe/internal/media"
	"github.com/nextlevelbuilder/wapipe/internal/notify"
	"github.com/nextlevelbuilder/wapipe/internal/pipeline"
	"github.com/nextlevelbuilder/wapipe/internal/qr"
	"github.com/nextlevelbuilder/wapipe/internal/store/pg"
	"github.com/nextlevelbuilder/wapipe/internal/tasks"
	"github.com/nextlevelbuilder/wapipe/internal/wa"
	"github.com/nextlevelbuilder/wapipe/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion pipeline and HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	db, err := pg.OpenDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	stores := pg.NewStores(db)

	notifier, err := notify.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.ClientID)
	if err != nil {
		slog.Error("telegram notifier setup failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge := wireBridge(ctx, cfg, notifier)
	if err := bridge.Start(ctx); err != nil {
		slog.Error("bridge start failed", "error", err)
		os.Exit(1)
	}
	defer bridge.Stop()

	processor, err := wireMedia(ctx, cfg, bridge)
	if err != nil {
		slog.Error("media pipeline setup failed", "error", err)
		os.Exit(1)
	}

	agent := langgraph.NewClient(cfg.LangGraphAPIURL, cfg.LangGraphAPIKey)
	hook := webhook.NewSender(cfg.WebhookURL, cfg.WebhookAuthKey)

	pipe := pipeline.New(bridge, stores, processor, agent, hook, notifier, pipeline.Config{
		BotJID:        cfg.BotJID(),
		TriggerToken:  cfg.TriggerToken,
		DefaultDelay:  time.Duration(cfg.ResponseDelayMS) * time.Millisecond,
		ContextLength: cfg.ContextLength,
	})

	var extractor *tasks.Extractor
	if cfg.AnthropicAPIKey != "" {
		extractor = tasks.NewExtractor(cfg.AnthropicAPIKey)
	}
	api := httpapi.NewServer(bridge, stores, extractorOrNil(extractor), cfg.HTTPAuthKey)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipe.Run(ctx) })
	g.Go(func() error { return api.Listen(ctx, cfg.Port) })

	slog.Info("wapipe running", "client_id", cfg.ClientID, "port", cfg.Port)
	notifier.Notify(ctx, "🚀 pipeline started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("pipeline terminated", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// wireBridge builds the transport client and hooks pairing QR delivery.
func wireBridge(ctx context.Context, cfg *config.Config, notifier *notify.Notifier) *wa.Bridge {
	bridge := wa.NewBridge(cfg.BridgeWSURL, cfg.BridgeHTTPURL, cfg.ClientID)
	bridge.OnQR = func(code string) {
		path, err := qr.WritePNG(cfg.TempDir, code)
		if err != nil {
			slog.Error("qr render failed", "error", err)
			return
		}
		defer os.Remove(path)
		notifier.Photo(ctx, path, "Scan to pair WhatsApp")
	}
	return bridge
}

// wireMedia assembles the per-kind media processors.
func wireMedia(ctx context.Context, cfg *config.Config, bridge *wa.Bridge) (*media.Processor, error) {
	images := media.NewImageDescriber(cfg.OpenAIAPIKey, cfg.ImagePrompt)

	whisper := media.NewWhisperTranscriber(cfg.OpenAIAPIKey)
	var audio *media.FallbackTranscriber
	if cfg.ElevenLabsAPIKey != "" {
		audio = media.NewFallbackTranscriber(media.NewElevenLabsTranscriber(cfg.ElevenLabsAPIKey), whisper)
	} else {
		audio = media.NewFallbackTranscriber(whisper, nil)
	}

	video, err := media.NewVideoSummarizer(ctx, cfg.GoogleAPIKey, cfg.VideoPrompt)
	if err != nil {
		return nil, err
	}

	docs := media.NewDocumentParser(cfg.LlamaParseAPIKey)

	var uploader blob.Uploader
	if cfg.BlobEndpoint != "" {
		uploader = blob.NewHTTPUploader(cfg.BlobEndpoint, cfg.BlobAPIKey)
	}

	return media.NewProcessor(bridge, uploader, images, audio, video, docs, cfg.TempDir), nil
}

// extractorOrNil avoids handing httpapi a typed-nil interface value.
func extractorOrNil(e *tasks.Extractor) httpapi.TaskExtractor {
	if e == nil {
		return nil
	}
	return e
}
