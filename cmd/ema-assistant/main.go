// Command ema-assistant is a terminal client for the assistant: type a
// query or hold a voice turn, browse earlier answers and recover from
// errors without restarting.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/koscakluka/ema-assistant/core/audio/miniaudio"
	"github.com/koscakluka/ema-assistant/core/config"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	headless := flag.Bool("headless", false, "read queries from stdin instead of running the terminal UI")
	printSchema := flag.Bool("schema", false, "print the configuration JSON schema and exit")
	listDevices := flag.Bool("devices", false, "list audio devices and exit")
	flag.Parse()

	if err := run(*configPath, *headless, *printSchema, *listDevices); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, headless, printSchema, listDevices bool) error {
	if printSchema {
		schema, err := config.Schema()
		if err != nil {
			return err
		}
		fmt.Println(string(schema))
		return nil
	}

	if listDevices {
		return printDevices()
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	} else if err := cfg.Validate(); err != nil {
		return fmt.Errorf("no configuration given and the defaults are incomplete (%w), pass -config", err)
	}

	closeLog, err := setupLogging(cfg, headless)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if headless {
		return runHeadless(ctx, app, os.Stdin)
	}

	program := tea.NewProgram(newModel(app), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}

func setupLogging(cfg *config.Config, headless bool) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	// the terminal UI owns stdout, logs go to a file instead
	if !headless {
		path := cfg.Logging.File
		if path == "" {
			path = "ema-assistant.log"
		}
		file, err := tea.LogToFile(path, "ema")
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})))
		return func() { file.Close() }, nil
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return func() {}, nil
}

func printDevices() error {
	client, err := miniaudio.NewClient()
	if err != nil {
		return err
	}
	defer client.Close()

	devices, err := client.Devices()
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cyan := color.New(color.FgCyan)
	for _, id := range ids {
		cyan.Printf("%-40s", devices[id])
		fmt.Printf(" %s\n", id)
	}
	return nil
}
