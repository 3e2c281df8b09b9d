// Command granola-mcp serves the Granola desktop application's local
// meeting cache to MCP clients over stdio or HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rusq/osenv/v2"

	"github.com/oviedran/granola-mcp/internal/index"
	"github.com/oviedran/granola-mcp/internal/mcp"
	"github.com/oviedran/granola-mcp/internal/store"
)

var build = "dev"

// secrets are the files tried, in order, for environment overrides.  The
// .env.txt variant accommodates editors that insist on the txt extension.
var secrets = []string{".env", ".env.txt", "secrets.txt"}

const (
	envCachePath = "GRANOLA_CACHE_PATH"
	envTransport = "GRANOLA_TRANSPORT"
	envListen    = "GRANOLA_LISTEN"
	envUseIndex  = "GRANOLA_USE_SQLITE"
	envIndexPath = "GRANOLA_DB_PATH"
)

// config is the validated server configuration.
type config struct {
	CachePath string `validate:"required"`
	Transport string `validate:"oneof=stdio http"`
	Listen    string `validate:"required_if=Transport http"`
	UseIndex  bool
	IndexPath string
}

// params is the command line parameters.
type params struct {
	cfg          config
	printVersion bool
	verbose      bool
}

var validate = validator.New()

func main() {
	loadSecrets(secrets)

	p, err := parseCmdLine(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if p.printVersion {
		fmt.Println(build)
		return
	}
	initLog(p.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, p); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, p params) error {
	lg := slog.Default()
	st := store.New(p.cfg.CachePath, store.WithLogger(lg))

	opts := []mcp.Option{mcp.WithLogger(lg)}
	if p.cfg.UseIndex {
		ix, err := index.Open(p.cfg.IndexPath)
		if err != nil {
			return fmt.Errorf("open search index: %w", err)
		}
		defer ix.Close()
		opts = append(opts, mcp.WithIndex(ix))
	}

	srv := mcp.New(st, opts...)

	switch mcp.Transport(p.cfg.Transport) {
	case mcp.TransportHTTP:
		return srv.ServeHTTP(ctx, p.cfg.Listen)
	default:
		return srv.ServeStdio(ctx)
	}
}

// loadSecrets loads environment overrides from the files in the secrets
// slice.
func loadSecrets(files []string) {
	for _, f := range files {
		godotenv.Load(f)
	}
}

// parseCmdLine parses the command line arguments.
func parseCmdLine(args []string) (params, error) {
	fs := flag.NewFlagSet("granola-mcp", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			fs.Output(),
			"granola-mcp %s\n"+
				"Serves the meetings recorded by the Granola desktop application\n"+
				"to MCP clients, read-only, over stdio or HTTP.\n\n"+
				"Usage:  %s [flags]\n\n",
			build, filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}

	var p params
	fs.StringVar(&p.cfg.CachePath, "cache", osenv.Value(envCachePath, defaultCachePath()), "Granola cache `file` (environment: "+envCachePath+")")
	fs.StringVar(&p.cfg.Transport, "transport", osenv.Value(envTransport, "stdio"), "MCP transport: \"stdio\" or \"http\" (environment: "+envTransport+")")
	fs.StringVar(&p.cfg.Listen, "listen", osenv.Value(envListen, "127.0.0.1:8090"), "address to listen on when -transport=http (environment: "+envListen+")")
	fs.BoolVar(&p.cfg.UseIndex, "index", osenv.Value(envUseIndex, false), "back search_meetings with a SQLite FTS index (environment: "+envUseIndex+")")
	fs.StringVar(&p.cfg.IndexPath, "db", osenv.Value(envIndexPath, index.InMemory), "search index database `file` (environment: "+envIndexPath+")")
	fs.BoolVar(&p.printVersion, "V", false, "print version and exit")
	fs.BoolVar(&p.verbose, "v", osenv.Value("DEBUG", false), "verbose messages")

	if err := fs.Parse(args); err != nil {
		return p, err
	}
	p.cfg.CachePath = expandHome(p.cfg.CachePath)
	p.cfg.IndexPath = expandHome(p.cfg.IndexPath)
	return p, p.validate()
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func (p *params) validate() error {
	if p.printVersion {
		return nil
	}
	if err := validate.Struct(&p.cfg); err != nil {
		var vErr validator.ValidationErrors
		if errors.As(err, &vErr) {
			return fmt.Errorf("invalid configuration: %s", vErr)
		}
		return err
	}
	return nil
}

// defaultCachePath returns the cache location used by the Granola
// desktop application on this platform.
func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "cache-v3.json"
	}
	return filepath.Join(dir, "Granola", "cache-v3.json")
}

func initLog(verbose bool) {
	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "granola-mcp:", err)
	os.Exit(1)
}
