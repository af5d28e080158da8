package main

import (
	"context"
	"flag"

	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/magnetite/internal/app"
	"github.com/leonardcser/magnetite/internal/config"
	"github.com/leonardcser/magnetite/internal/logger"
	"github.com/leonardcser/magnetite/internal/tools"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file (default $MAGNETITE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}
	if err := app.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting magnetite MCP server")

	a, err := app.New(context.Background(), cfg, *configFile)
	if err != nil {
		logger.Errorf("%v", err)
		panic(err)
	}
	defer a.Close()

	s := server.NewMCPServer(
		"Magnetite",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)
	s.AddTool(tools.NewFeedTool(a.Registry.Names()), tools.FeedHandler(a.Feeds))
	logger.Infof("Registered rss-feed tool")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}
