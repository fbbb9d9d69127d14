package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlexGustafsson/relay/internal/completion"
	"github.com/AlexGustafsson/relay/internal/instructions"
	"github.com/AlexGustafsson/relay/internal/llm"
	"github.com/AlexGustafsson/relay/internal/llm/ollama"
	"github.com/AlexGustafsson/relay/internal/server"
	"github.com/AlexGustafsson/relay/internal/state"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// newHandler creates a completion handler as configured.
func newHandler(config *state.Config, observer completion.Observer) (*completion.Handler, error) {
	mergeMode, err := completion.ParseMergeMode(config.MergeMode)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]llm.Client)
	if config.Ollama != nil && config.Ollama.Enabled {
		clients["ollama"] = ollama.NewClient(nil, &ollama.Options{KeepAlive: config.Ollama.KeepAlive})
	}

	return completion.NewHandler(&completion.Options{
		Instructions: instructions.NewFetcher(config.InstructionBaseURL, nil),
		Clients:      clients,
		MergeMode:    mergeMode,
		Observer:     observer,
	}), nil
}

func serve(ctx context.Context, config *state.Config) error {
	options := &server.Options{}

	var observer completion.Observer
	if config.Prometheus != nil && config.Prometheus.Enabled {
		metrics := state.NewMetrics()
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		observer = metrics
		options.Gatherer = registry
	}

	handler, err := newHandler(config, observer)
	if err != nil {
		return err
	}

	return server.New(handler, options).ListenAndServe(ctx, config.Listen)
}

// invoke handles a single activation read from r and writes the result to w.
func invoke(ctx context.Context, config *state.Config, r io.Reader, w io.Writer) error {
	handler, err := newHandler(config, nil)
	if err != nil {
		return err
	}

	var result completion.Result
	var activation completion.Activation
	if err := json.NewDecoder(r).Decode(&activation); err != nil {
		result = completion.Failure(fmt.Errorf("invalid activation: %w", err))
	} else {
		result = handler.Handle(ctx, &activation)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags]\n\nCommands:\n  serve   Serve completions over HTTP and WebSocket\n  invoke  Handle one activation read from stdin or a file\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]
	flags := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := flags.String("config", "", "path to configuration file, created if missing")
	envFile := flags.String("env", ".env", "path to .env file (ignored if missing)")
	inputPath := flags.String("f", "", "activation file for invoke (default: stdin)")
	_ = flags.Parse(os.Args[2:])

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	config, err := state.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.LogLevel,
	})))

	// Exit on SIGINT or SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		abort := make(chan os.Signal, 1)
		signal.Notify(abort, syscall.SIGINT, syscall.SIGTERM)
		caught := 0
		for {
			<-abort
			caught++
			if caught == 1 {
				slog.Info("Caught signal, exiting gracefully")
				cancel()
			} else {
				slog.Info("Caught signal, exiting now")
				os.Exit(1)
			}
		}
	}()

	switch command {
	case "serve":
		err = serve(ctx, config)
	case "invoke":
		input := io.Reader(os.Stdin)
		if *inputPath != "" {
			file, openErr := os.Open(*inputPath)
			if openErr != nil {
				slog.Error("Failed to open activation", slog.Any("error", openErr))
				os.Exit(1)
			}
			defer file.Close()
			input = file
		}
		err = invoke(ctx, config, input, os.Stdout)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		slog.Error("Program was unsuccessful", slog.Any("error", err))
		os.Exit(1)
	}
}
