package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/mailbox-triage/internal/adapters/filter"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/di"
	"github.com/mikey/mailbox-triage/internal/ports"
	"github.com/mikey/mailbox-triage/internal/utils"
	"go.uber.org/zap"
)

func main() {
	flags, err := di.ParseFlags("spam-detector", os.Args[1:])
	if err != nil {
		if di.IsHelp(err) {
			return
		}
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.BuildCLIContainer(ctx, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	err = container.Invoke(func(
		logger *zap.Logger,
		flags *di.CLIFlags,
		textProcessor *utils.TextProcessor,
		emailFilter ports.EmailFilter,
		classifier core.Classifier,
	) error {
		defer logger.Sync()
		defer func() {
			if closer, ok := classifier.(interface{ Close() error }); ok {
				if err := closer.Close(); err != nil {
					logger.Error("Failed to close classifier", zap.Error(err))
				}
			}
		}()

		// Read email from file or stdin
		var emailReader io.Reader
		if flags.InputFile != "" {
			file, err := os.Open(flags.InputFile)
			if err != nil {
				return fmt.Errorf("failed to open input file: %w", err)
			}
			defer file.Close()
			emailReader = file
			logger.Info("Reading email from file", zap.String("file", flags.InputFile))
		} else {
			emailReader = os.Stdin
			logger.Info("Reading email from stdin")
		}

		summary, err := filter.SummaryFromMessage(emailReader, textProcessor)
		if err != nil {
			return err
		}

		_, err = emailFilter.ProcessEmail(ctx, summary)
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
