// Command transcribe runs audio files through the recorder pipeline and
// prints the accumulated transcript.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/recorder/internal/capture"
	"github.com/obiente/translate/recorder/internal/config"
	"github.com/obiente/translate/recorder/internal/model"
	"github.com/obiente/translate/recorder/internal/recorder"
	"github.com/obiente/translate/recorder/internal/whisper"
)

var mimeByExt = map[string]string{
	".wav":  "audio/wav",
	".wave": "audio/wav",
	".pcm":  "audio/pcm",
	".raw":  "audio/pcm",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
}

func mimeFor(path, override string) string {
	if override != "" {
		return override
	}
	if mt, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}

func main() {
	var (
		mimeType  = flag.String("mime", "", "mime type of every input, default from the file extension")
		chunkSize = flag.Int("chunk-bytes", 32*1024, "bytes per chunk fed to the recorder")
		verbose   = flag.Bool("v", false, "log progress to stderr")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	if *verbose {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	text, err := run(ctx, cfg, flag.Args(), *mimeType, *chunkSize)
	if text != "" {
		fmt.Println(text)
	}
	if err != nil {
		log.Error().Err(err).Msg("transcription failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, files []string, mimeOverride string, chunkSize int) (string, error) {
	open, err := whisper.Open(cfg, model.NewFetcher(nil).Func(cfg.Whisper.ModelURL, cfg.Whisper.ModelPath))
	if err != nil {
		return "", err
	}
	loader := whisper.NewLoader(open)
	defer loader.Close()

	dec, err := recorder.NewDecoder(cfg)
	if err != nil {
		return "", err
	}
	ctrl := recorder.NewController(recorder.ConfigFrom(cfg, dec, loader, nil))

	var failed error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ctrl.Events() {
			switch ev.Type {
			case recorder.EventStatus:
				log.Info().Msg(ev.Status)
			case recorder.EventError:
				failed = errors.New(ev.Detail)
			}
		}
	}()

	progress, unsubscribe := loader.Subscribe()
	go func() {
		for p := range progress {
			ctrl.ObserveModel(p)
		}
	}()
	err = loader.Load(ctx)
	unsubscribe()
	if err != nil {
		ctrl.Close()
		<-done
		return "", err
	}

	for _, path := range files {
		if err := feed(ctx, ctrl, path, mimeFor(path, mimeOverride), chunkSize); err != nil {
			ctrl.Close()
			<-done
			return ctrl.Transcript(), fmt.Errorf("%s: %w", path, err)
		}
		ctrl.Wait()
	}
	ctrl.Close()
	<-done
	return ctrl.Transcript(), failed
}

// feed replays a file as a recording split into chunkSize pieces.
func feed(ctx context.Context, ctrl *recorder.Controller, path, mimeType string, chunkSize int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if chunkSize <= 0 {
		chunkSize = len(data)
	}
	if _, err := ctrl.Start(ctx, capture.NopDevice{}, mimeType); err != nil {
		return err
	}
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		if err := ctrl.Write(data[:n]); err != nil {
			_ = ctrl.Stop(ctx)
			return err
		}
		data = data[n:]
	}
	return ctrl.Stop(ctx)
}
