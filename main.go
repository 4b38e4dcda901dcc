// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/campushub/realtime/internal/app"
	"github.com/campushub/realtime/internal/config"
)

var (
	cfgPath  = flag.String("config", "campushub.json", "Path to the config file")
	showHelp = flag.Bool("h", false, "Show help")
	version  = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("CampusHub Realtime v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	absPath, err := filepath.Abs(*cfgPath)
	if err != nil {
		log.Fatalf("Invalid config path: %v", err)
	}

	cfg, created, err := config.Ensure(absPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if created {
		fmt.Printf("Wrote default config to %s\n", absPath)
		fmt.Println("Fill in identity.user_id and server.base_url, then run again.")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	printBanner(absPath, cfg)

	client, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := client.Start(ctx); err != nil {
		log.Fatalf("Client failed to start: %v", err)
	}

	stopWatch, err := config.Watch(absPath, client.ApplyTunables)
	if err != nil {
		log.Printf("MAIN: config watch unavailable: %v", err)
	} else {
		defer stopWatch()
	}

	<-ctx.Done()
	client.Close()
}

func showUsage() {
	fmt.Println("CampusHub Realtime - campus portal chat and call client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  realtime [-config <path>]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config   Path to the JSON config file (default campushub.json)")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println()
	fmt.Println("On first run a default config is written to the given path;")
	fmt.Println("fill in identity.user_id and server.base_url before starting.")
}

func printBanner(cfgPath string, cfg config.Config) {
	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║               CampusHub Realtime Client                ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Config File: %s\n", cfgPath)
	fmt.Printf("User:        %s", cfg.Identity.UserID)
	if cfg.Identity.DisplayName != "" {
		fmt.Printf(" (%s)", cfg.Identity.DisplayName)
	}
	fmt.Println()
	fmt.Printf("Server:      %s\n", cfg.Server.BaseURL)
	fmt.Println()
	fmt.Println("Starting client... (Press Ctrl+C to stop)")
	fmt.Println("────────────────────────────────────────────────────────")
	fmt.Println()
}
