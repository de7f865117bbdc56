// Command unifysync downloads a remote video stream and a remote audio
// stream and merges them into a single file with ffmpeg stream-copy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Henrique-Coder/unifysync/internal/bootstrap"
	"github.com/Henrique-Coder/unifysync/internal/config"
)

func main() {
	os.Exit(run())
}

// run is the single exit point: every fatal path returns a non-zero
// code after workspace teardown has had its chance to execute.
func run() int {
	cfg := config.Defaults()
	var showVersion bool

	flag.StringVar(&cfg.VideoURL, "vu", "", "URL of the video file")
	flag.StringVar(&cfg.VideoURL, "video-url", "", "URL of the video file")
	flag.StringVar(&cfg.AudioURL, "au", "", "URL of the audio file")
	flag.StringVar(&cfg.AudioURL, "audio-url", "", "URL of the audio file")
	flag.StringVar(&cfg.OutputPath, "o", "", "output file path (including path, file name, and extension)")
	flag.StringVar(&cfg.OutputPath, "output", "", "output file path (including path, file name, and extension)")
	flag.BoolVar(&cfg.GenerateLogfile, "l", false, "enable logging to a file")
	flag.BoolVar(&cfg.GenerateLogfile, "generate-logfile", false, "enable logging to a file")
	flag.BoolVar(&cfg.Quiet, "q", false, "silence terminal output")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "silence terminal output")
	flag.BoolVar(&showVersion, "v", false, "print version and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(config.Version)
		return 0
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		return 2
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		app.Logger().Error("pipeline failed", zap.Error(err))
		return 1
	}

	app.Logger().Info("application finished successfully")
	return 0
}
