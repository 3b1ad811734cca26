package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/i474232898/weather-predictor/internal/app"
	"github.com/i474232898/weather-predictor/internal/config"
	"github.com/i474232898/weather-predictor/internal/logging"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(logging.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})
	defer logger.Sync()

	// Feature table and model are loaded once, here.
	application := app.New(cfg, logger)
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("error during shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run(ctx, application, os.Stdin, os.Stdout)
}

// run prompts for city names until input ends or ctx is cancelled.
func run(ctx context.Context, a *app.App, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "Enter a city name to predict its weather: ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return
			}
			line = l
		}
		city := strings.TrimSpace(line)
		answer := a.Answer(ctx, city)
		fmt.Fprintf(out, "Predicted weather for '%s': %s\n", city, answer)
	}
}
