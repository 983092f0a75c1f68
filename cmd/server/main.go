package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/config"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/logger"
	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"  env:"CONFIG_FILE"    description:"Path to story configuration file" default:"story.yaml"`
	Addr       string `short:"a" long:"addr"    env:"LISTEN_ADDRESS" description:"Address to listen on"             default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"    env:"LISTEN_PORT"    description:"Port to listen on"                default:"8080"`
	Preload    int    `short:"w" long:"preload" env:"PRELOAD"        description:"Preload worker count, 0 disables" default:"4"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Story
	story, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load story configuration")
	}

	srvCtx := server.NewServerContext(story)

	// Warm the collection cache in the background
	if opts.Preload > 0 {
		go srvCtx.PreloadCollections(context.Background(), opts.Preload)
	}

	mux := http.NewServeMux()
	srvCtx.Routes(mux)

	handler := server.RequestLogger(mux)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Str("story", story.Title).
		Int("slides", len(story.Slides)).
		Msg("Web server started")

	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
