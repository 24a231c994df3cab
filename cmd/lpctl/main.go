// main.go - Admin control tool for linkpulse
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/karloscodes/cartridge/cache"
	"golang.org/x/term"

	"linkpulse/internal"
	"linkpulse/internal/clicks"
	"linkpulse/internal/links"
	"linkpulse/internal/owners"
	"linkpulse/internal/seeder"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&CreateProfileCommand{},
	&IssueAPIKeyCommand{},
	&CreateLinkCommand{},
	&SummaryCommand{},
	&SeedCommand{},
	&PurgeCacheCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	if _, ok := cmd.(*HelpCommand); ok {
		_ = cmd.Execute(ctx, nil, args)
		return
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// CreateProfileCommand registers a profile username for an owner
type CreateProfileCommand struct{}

func (c *CreateProfileCommand) Name() string { return "create-profile" }
func (c *CreateProfileCommand) Description() string {
	return "Registers a profile username for an owner: create-profile <username> <owner-id>"
}

func (c *CreateProfileCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <username> <owner-id>", c.Name())
	}

	profile, err := owners.CreateProfile(app.DBManager.GetConnection(), app.Services.Logger, args[0], args[1])
	if err != nil {
		if errors.Is(err, owners.ErrProfileExists) {
			log.Printf("Profile %s already exists", args[0])
			return nil
		}
		return err
	}
	fmt.Printf("Profile @%s created for owner %s\n", profile.Username, profile.OwnerID)
	return nil
}

// IssueAPIKeyCommand creates an API key for an owner
type IssueAPIKeyCommand struct{}

func (c *IssueAPIKeyCommand) Name() string { return "issue-api-key" }
func (c *IssueAPIKeyCommand) Description() string {
	return "Issues an API key for an owner: issue-api-key <owner-id>"
}

func (c *IssueAPIKeyCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <owner-id>", c.Name())
	}

	raw, err := owners.IssueAPIKey(app.DBManager.GetConnection(), app.Services.Logger, args[0])
	if err != nil {
		return err
	}
	fmt.Println(raw)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "Store this key now; it cannot be shown again.")
	}
	return nil
}

// CreateLinkCommand creates a short link
type CreateLinkCommand struct{}

func (c *CreateLinkCommand) Name() string { return "create-link" }
func (c *CreateLinkCommand) Description() string {
	return "Creates a short link: create-link -owner <id> [-slug s] [-title t] <url>"
}

func (c *CreateLinkCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	owner := fs.String("owner", "", "owner id")
	slug := fs.String("slug", "", "custom slug")
	title := fs.String("title", "", "link title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: %s -owner <id> [-slug s] [-title t] <url>", c.Name())
	}

	link, err := app.Services.Links.CreateShortLink(ctx, links.CreateInput{
		OwnerID:     *owner,
		OriginalURL: fs.Arg(0),
		CustomSlug:  *slug,
		Title:       *title,
	})
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, link)
}

// SummaryCommand prints the analytics rollup of an owner or one link
type SummaryCommand struct{}

func (c *SummaryCommand) Name() string { return "summary" }
func (c *SummaryCommand) Description() string {
	return "Prints analytics: summary -owner <id> [-link <slug>]"
}

func (c *SummaryCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	owner := fs.String("owner", "", "owner id")
	link := fs.String("link", "", "link slug")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *owner == "" {
		return fmt.Errorf("usage: %s -owner <id> [-link <slug>]", c.Name())
	}

	engine := app.Services.Engine
	if *link != "" {
		summary, err := engine.SummarizeLink(ctx, *owner, *link)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, summary)
	}

	summary, err := engine.SummarizeAccount(ctx, *owner)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, summary)
}

// SeedCommand populates the DB with demo data
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with a demo profile and clicks" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	count := fs.Int("clicks", 5000, "number of clicks to generate")
	days := fs.Int("days", 30, "spread clicks over this many days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	se := seeder.NewSeeder(app.DBManager, app.Services.Logger, *count)
	se.Days = *days
	report, err := se.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Seeded @%s (owner %s) with %d clicks on %v\n", seeder.DemoUsername, report.OwnerID, report.Clicks, report.LinkIDs)
	fmt.Printf("API key: %s\n", report.APIKey)
	return nil
}

// PurgeCacheCommand drops every cached entry
type PurgeCacheCommand struct{}

func (c *PurgeCacheCommand) Name() string        { return "purge-cache" }
func (c *PurgeCacheCommand) Description() string { return "Deletes all persisted cache records" }

func (c *PurgeCacheCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	n, err := cache.PurgeAllCaches(app.DBManager.GetConnection())
	if err != nil {
		return fmt.Errorf("failed to purge caches: %w", err)
	}
	fmt.Printf("Purged %d cache records\n", n)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()

	var linkCount, clickCount int64
	if err := db.WithContext(ctx).Model(&links.Link{}).Count(&linkCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.WithContext(ctx).Model(&clicks.ClickEvent{}).Count(&clickCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Links: %d", linkCount)
	log.Printf("- Click events: %d", clickCount)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(os.Stdout)
	return nil
}

// writeJSON indents output for people and keeps it compact for pipes.
func writeJSON(w io.Writer, v any) error {
	var (
		out []byte
		err error
	)
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lpctl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage(os.Stdout)
	os.Exit(1)
}
