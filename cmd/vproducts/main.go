package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/livingwales/vproducts/internal/compute"
	"github.com/livingwales/vproducts/internal/config"
	"github.com/livingwales/vproducts/internal/db"
	"github.com/livingwales/vproducts/internal/version"
)

var (
	configFile = flag.String("config", "", "Path to a JSON configuration file (defaults are built in)")
	dbFlag     = flag.String("db", "", "Catalog database path (overrides the config)")
)

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	dbPath string
	out    io.Writer
	in     io.Reader
}

func (a *app) openDB() (*db.DB, error) {
	database, err := db.NewDB(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", a.dbPath, err)
	}
	return database, nil
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"products", "List stored products and available transformations", runProducts},
	{"run", "Evaluate a recipe: run -recipe file.yaml [-store name]", runRecipe},
	{"compute", "Apply one transformation to a stored product", runCompute},
	{"crop", "Classify parcel seasonality: crop -in series.json [-html dir]", runCrop},
	{"flood", "Map floods over a site: flood -site wye -from -to", runFlood},
	{"forest", "Map clearfelling over a site: forest -site 1 -from -to", runForest},
	{"fire", "Map burnt area over a site: fire -site glanaman -from -to", runFire},
	{"render", "Render a stored layer: render -product name [-time date] -out file.png", runRender},
	{"serve", "Serve the catalog over HTTP: serve [-listen :8080]", runServe},
	{"migrate", "Manage the catalog schema: migrate up|down|status|version|force", runMigrate},
	{"webhook", "Trigger a remote action: webhook [-action name] [-args a/b]", runWebhook},
	{"version", "Show the version", runVersion},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "vproducts - Living Wales virtual products")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: vproducts [-config file.json] [-db path] <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.usage)
	}
}

func runVersion(_ context.Context, a *app, _ []string) error {
	fmt.Fprintf(a.out, "vproducts version %s\n", version.String())
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Empty(), nil
	}
	return config.LoadConfig(path)
}

func main() {
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	name := flag.Arg(0)
	if name == "help" {
		printUsage(os.Stdout)
		return
	}
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	a := &app{cfg: cfg, dbPath: cfg.GetDBPath(), out: os.Stdout, in: os.Stdin}
	if *dbFlag != "" {
		a.dbPath = *dbFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = compute.WithPool(ctx, compute.Pool{Workers: cfg.GetWorkers(), ChunkRows: cfg.GetChunkRows()})

	if err := cmd.run(ctx, a, flag.Args()[1:]); err != nil {
		log.Fatalf("%s: %v", name, err)
	}
}
