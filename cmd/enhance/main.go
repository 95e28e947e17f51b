// Command enhance is a minimal CLI front end for the enhancement core:
// it reads OCR text from stdin (or the first argument), runs it through
// the Orchestrator, and prints the resulting EnhancementResult as JSON.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"textenhancer/internal/config"
	"textenhancer/internal/logging"
	"textenhancer/internal/manager"
	"textenhancer/internal/orchestrator"
	"textenhancer/internal/providers"
	"textenhancer/internal/queue"
	"textenhancer/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	text, err := readInput()
	if err != nil {
		log.Fatalf("failed to read input text: %v", err)
	}

	reg := buildRegistry(cfg)
	mgr := manager.New(reg, logging.New("manager"))

	ctx, cancel := signalContext()
	defer cancel()

	mgr.StartHealthRefresh(ctx)
	defer mgr.StopHealthRefresh()

	sink, closeSink := buildAuditSink(ctx, cfg)
	defer closeSink()

	orch := orchestrator.New(mgr, logging.New("orchestrator"), orchestrator.Config{
		Enabled:                cfg.Enhancement.Enabled,
		UseVisionWhenAvailable: cfg.Enhancement.UseVisionWhenAvailable,
	}, sink)

	result := orch.Enhance(ctx, orchestrator.EnhancementRequest{
		Text:         text,
		DocumentType: orchestrator.DocumentUnknown,
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal result: %v", err)
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
}

func readInput() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func buildRegistry(cfg *config.Config) *registry.Registry {
	reg := registry.New()
	for _, pc := range cfg.Providers {
		adapter := buildAdapter(pc)
		if adapter == nil {
			continue
		}
		reg.Add(adapter, pc.Priority)
	}
	return reg
}

func buildAdapter(cfg providers.Config) providers.Adapter {
	switch cfg.Name {
	case "groq":
		return providers.NewGroqAdapter(cfg)
	case "deepseek":
		return providers.NewDeepSeekAdapter(cfg)
	case "gemini":
		return providers.NewGeminiAdapter(cfg)
	case "localllm":
		return providers.NewLocalLLMAdapter(cfg)
	default:
		return nil
	}
}

// buildAuditSink wires the configured audit backend onto a queue.Queue
// (memory or Redis) drained by a QueueSink, falling back to an
// in-process rotating JSONL logger when no queue backend applies, and to
// a no-op sink when disabled entirely. The returned closer flushes/shuts
// down whatever was built.
func buildAuditSink(ctx context.Context, cfg *config.Config) (logging.Sink, func()) {
	if !cfg.AuditSink.Enabled {
		return logging.NewNoopSink(), func() {}
	}

	var s3Writer *logging.S3Writer
	if cfg.AuditSink.S3Bucket != "" {
		w, err := logging.NewS3Writer(ctx, cfg.AuditSink.S3Bucket, cfg.AuditSink.S3Region, cfg.AuditSink.S3Prefix, instanceName())
		if err != nil {
			log.Printf("failed to build S3 audit writer, continuing without S3 upload: %v", err)
		} else {
			s3Writer = w
		}
	}

	switch cfg.AuditSink.Backend {
	case "redis":
		qCfg := queue.DefaultConfig("enhancements")
		qCfg.UseRedis = true
		qCfg.RedisAddr = cfg.AuditSink.RedisAddress
		rq, err := queue.NewRedisQueue(qCfg)
		if err != nil {
			log.Printf("failed to connect to Redis audit queue, falling back to file logger: %v", err)
			return buildFileAuditLogger(cfg)
		}
		qSink := logging.NewQueueSink(rq, s3Writer, qCfg.BatchSize, cfg.AuditSink.FlushInterval)
		qSink.Start(ctx)
		return qSink, func() { qSink.Stop(); _ = rq.Close() }
	case "memory":
		mq := queue.NewMemoryQueue(queue.DefaultConfig("enhancements"))
		qSink := logging.NewQueueSink(mq, s3Writer, 100, cfg.AuditSink.FlushInterval)
		qSink.Start(ctx)
		return qSink, func() { qSink.Stop(); _ = mq.Close() }
	default:
		return buildFileAuditLogger(cfg)
	}
}

func buildFileAuditLogger(cfg *config.Config) (logging.Sink, func()) {
	al, err := logging.NewAuditLogger(cfg.AuditSink.FilePathTemplate, cfg.AuditSink.MaxSizeBytes, cfg.AuditSink.MaxFiles, 1000, cfg.AuditSink.FlushInterval)
	if err != nil {
		log.Printf("failed to build audit logger, falling back to no-op: %v", err)
		return logging.NewNoopSink(), func() {}
	}
	return al, al.Shutdown
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil {
		return "enhance-cli"
	}
	return host
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}
