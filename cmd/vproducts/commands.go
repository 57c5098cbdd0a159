package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/livingwales/vproducts/internal/api"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/db"
	"github.com/livingwales/vproducts/internal/products"
	"github.com/livingwales/vproducts/internal/recipe"
	"github.com/livingwales/vproducts/internal/render"
	"github.com/livingwales/vproducts/internal/security"
	"github.com/livingwales/vproducts/internal/webhook"
)

func splitList(s string, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runProducts(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("products", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	stored, err := database.Products(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tOBSERVATIONS\tFIRST\tLAST\tBANDS")
	for _, p := range stored {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", p.Product, p.Observations,
			p.First.Format(cube.DateLayout), p.Last.Format(cube.DateLayout), strings.Join(p.Bands, ","))
	}
	tw.Flush()
	fmt.Fprintf(a.out, "\nTransformations: %s\n", strings.Join(products.Names(), ", "))
	return nil
}

func runRecipe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	path := fs.String("recipe", "", "Recipe YAML file (required)")
	store := fs.String("store", "", "Store the result under this product name (overrides the recipe output)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		fs.Usage()
		return fmt.Errorf("-recipe is required")
	}
	r, err := recipe.Load(*path)
	if err != nil {
		return err
	}
	if *store != "" {
		r.Output = *store
	}

	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	e := &recipe.Executor{Source: database, Runs: database, Sink: database, Config: a.cfg}
	res, err := e.Execute(ctx, r)
	if err != nil {
		if res != nil {
			return fmt.Errorf("run %s failed: %w", res.Run.ID, err)
		}
		return err
	}
	fmt.Fprintf(a.out, "run %s %s in %s\n", res.Run.ID, res.Run.Status, res.Run.Duration().Round(time.Millisecond))
	fmt.Fprintf(a.out, "%s: %d time slices, bands %s\n", r.Name, res.Data.Len(), strings.Join(res.Data.Bands(), ","))
	if r.Output != "" {
		fmt.Fprintf(a.out, "stored as %s\n", r.Output)
	}
	return nil
}

func runCompute(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("compute", flag.ContinueOnError)
	vp := fs.String("vp", "", "Transformation name (see 'products')")
	input := fs.String("input", "", "Stored input product")
	bands := fs.String("bands", "", "Comma-separated input bands")
	from := fs.String("from", "", "Start date YYYY-MM-DD")
	to := fs.String("to", "", "End date YYYY-MM-DD")
	model := fs.String("model", "", "Classifier model file, relative to the model dir")
	store := fs.String("store", "", "Store the result under this product name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vp == "" || *input == "" {
		fs.Usage()
		return fmt.Errorf("-vp and -input are required")
	}
	var tr cube.DateRange
	if *from != "" || *to != "" {
		r, err := cube.ParseDateRange(*from, *to)
		if err != nil {
			return err
		}
		tr = r
	}

	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	t, err := products.New(*vp, products.Options{Config: a.cfg, Source: database, Model: *model})
	if err != nil {
		return err
	}
	ds, err := database.Load(ctx, cube.Query{Product: *input, Measurements: splitList(*bands, ","), Time: tr})
	if err != nil {
		return err
	}
	out, err := t.Compute(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to compute %s: %w", *vp, err)
	}
	fmt.Fprintf(a.out, "%s(%s): %d time slices, bands %s\n", *vp, *input, out.Len(), strings.Join(out.Bands(), ","))
	if *store != "" {
		if err := database.PutDataset(ctx, *store, out); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "stored as %s\n", *store)
	}
	return nil
}

// latestLayer returns the last time slice of band, or of the only band of
// ds when band is empty.
func latestLayer(ds *cube.Dataset, band string) (string, time.Time, *cube.Layer, error) {
	var (
		s   *cube.Stack
		err error
	)
	if band != "" {
		s, err = ds.Band(band)
	} else {
		band, s, err = ds.Only()
	}
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if s.Len() == 0 {
		return "", time.Time{}, nil, cube.ErrNoData
	}
	i := s.Len() - 1
	l, err := s.Slice(i)
	return band, s.Times[i], l, err
}

func runRender(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	product := fs.String("product", "", "Stored product (required)")
	band := fs.String("band", "", "Band to render (defaults to the only band)")
	day := fs.String("time", "", "Day to render YYYY-MM-DD (defaults to the latest)")
	out := fs.String("out", "", "Output PNG file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *product == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-product and -out are required")
	}
	if err := security.ValidateOutputPath(*out); err != nil {
		return err
	}
	q := cube.Query{Product: *product}
	if *band != "" {
		q.Measurements = []string{*band}
	}
	if *day != "" {
		tr, err := cube.ParseDateRange(*day, *day)
		if err != nil {
			return err
		}
		q.Time = tr
	}

	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ds, err := database.Load(ctx, q)
	if err != nil {
		return err
	}
	name, ts, l, err := latestLayer(ds, *band)
	if err != nil {
		return err
	}
	title := *product + " " + name
	if !ts.IsZero() {
		title += " " + ts.Format(cube.DateLayout)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *out, err)
	}
	if err := render.LayerPNG(f, l, title); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s\n", *out)
	return nil
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", a.cfg.GetListen(), "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}
	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	mux := http.NewServeMux()
	// admin debugging routes (tailsql, backup) under /debug/
	database.AttachAdminRoutes(mux)
	apiMux := api.NewServer(database, a.cfg).ServeMux()
	mux.Handle("/api/", apiMux)
	mux.Handle("/charts/", apiMux)

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	var wg sync.WaitGroup
	errc := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[serve] listening on %s (catalog %s)", *listen, a.dbPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Println("[serve] shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[serve] HTTP server shutdown error: %v", err)
	}
	wg.Wait()
	return nil
}

func runMigrate(_ context.Context, a *app, args []string) error {
	return db.MigrateCommand{Out: a.out, In: a.in}.Run(args, a.dbPath)
}

func runWebhook(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("webhook", flag.ContinueOnError)
	action := fs.String("action", a.cfg.GetWebhookAction(), "Action to trigger")
	actionArgs := fs.String("args", "", "Action arguments separated by '/'")
	status := fs.String("status", "", "Fetch the status of this action id instead of triggering")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := webhook.KeyFromEnv()
	if err != nil {
		return err
	}
	c, err := webhook.New(a.cfg, key)
	if err != nil {
		return err
	}
	if *status != "" {
		body, err := c.Status(ctx, *status)
		if err != nil {
			return err
		}
		for k, v := range body {
			fmt.Fprintf(a.out, "%s: %v\n", k, v)
		}
		return nil
	}
	res, err := c.Trigger(ctx, *action, splitList(*actionArgs, "/")...)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "action %s started\nstatus: %s\n", res.ActionID, res.StatusURL)
	return nil
}
