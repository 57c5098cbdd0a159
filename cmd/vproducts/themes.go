package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/livingwales/vproducts/internal/crop"
	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/db"
	"github.com/livingwales/vproducts/internal/fire"
	"github.com/livingwales/vproducts/internal/flood"
	"github.com/livingwales/vproducts/internal/forest"
	"github.com/livingwales/vproducts/internal/habitat"
	"github.com/livingwales/vproducts/internal/render"
	"github.com/livingwales/vproducts/internal/security"
	"github.com/livingwales/vproducts/internal/sites"
	"github.com/livingwales/vproducts/internal/units"
)

// maxSeriesFile caps the parcel series input of 'crop'.
const maxSeriesFile = 64 << 20

func readSeasons(path string) ([]crop.Season, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() > maxSeriesFile {
		return nil, fmt.Errorf("series file too large: %d bytes (max %d)", info.Size(), maxSeriesFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var seasons []crop.Season
	if err := json.Unmarshal(data, &seasons); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i, s := range seasons {
		if s.Parcel == "" {
			return nil, fmt.Errorf("parcel %d has no id", i)
		}
		if len(s.VH.Times) != len(s.VH.Values) || len(s.Ratio.Times) != len(s.Ratio.Values) {
			return nil, fmt.Errorf("parcel %s: times and values differ in length", s.Parcel)
		}
	}
	return seasons, nil
}

// writeCropPages renders one backscatter page per parcel into dir. VV is
// recovered from VH and the VH/VV ratio, both in dB.
func writeCropPages(dir string, seasons []crop.Season, decisions []crop.Decision) error {
	if err := security.ValidateOutputPath(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for i, s := range seasons {
		d := decisions[i]
		label := string(d.Type)
		if d.Type == crop.None {
			label = "unclassified"
		}
		if d.Step != "" {
			label += " (" + d.Step + ")"
		}
		path := filepath.Join(dir, security.SanitizeFilename(s.Parcel)+".html")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		err = render.CropPage(f, s.Parcel, label, s.VH, s.VH.Sub(s.Ratio), s.Ratio)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runCrop(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("crop", flag.ContinueOnError)
	in := fs.String("in", "", "JSON file of parcel seasons (required)")
	htmlDir := fs.String("html", "", "Write a backscatter chart per parcel into this directory")
	store := fs.Bool("store", true, "Record the decisions in the catalog")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("-in is required")
	}
	seasons, err := readSeasons(*in)
	if err != nil {
		return err
	}
	decisions, err := crop.Classify(ctx, seasons)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARCEL\tYEAR\tTYPE\tSTEP")
	for _, d := range decisions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", d.Parcel, d.Year, d.Type, d.Step)
	}
	tw.Flush()
	counts := crop.Counts(decisions)
	fmt.Fprintf(a.out, "\n%d grass, %d winter, %d spring, %d unclassified\n",
		counts[crop.Grass], counts[crop.Winter], counts[crop.Spring], counts[crop.None])

	if *htmlDir != "" {
		if err := writeCropPages(*htmlDir, seasons, decisions); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "charts written to %s\n", *htmlDir)
	}
	if !*store {
		return nil
	}
	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	return database.RecordCropDecisions(ctx, decisions)
}

// siteFlags registers the flags shared by the theme commands.
func siteFlags(fs *flag.FlagSet, def string) (site, from, to, store *string) {
	site = fs.String("site", def, "Site number or name")
	from = fs.String("from", "", "Start date YYYY-MM-DD")
	to = fs.String("to", "", "End date YYYY-MM-DD")
	store = fs.String("store", "", "Store the result under this product name")
	return
}

func lookupSite(theme, key string) (sites.Site, error) {
	s, err := sites.Groups[theme].Lookup(key)
	if err != nil {
		return s, fmt.Errorf("%w; %s sites are: %s", err, theme, strings.Join(sites.Groups[theme].Names(), ", "))
	}
	return s, nil
}

func storeStack(ctx context.Context, database *db.DB, product, band string, s *cube.Stack) error {
	ds := cube.NewDataset(s.Grid, s.Times)
	if err := ds.SetBand(band, s); err != nil {
		return err
	}
	return database.PutDataset(ctx, product, ds)
}

func runFlood(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("flood", flag.ContinueOnError)
	siteKey, from, to, store := siteFlags(fs, "1")
	if err := fs.Parse(args); err != nil {
		return err
	}
	site, err := lookupSite("flood", *siteKey)
	if err != nil {
		return err
	}
	q, err := flood.Query(site, *from, *to)
	if err != nil {
		return err
	}
	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ds, err := database.Load(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to load %s over %s: %w", q.Product, site.Name, err)
	}
	floods, err := flood.Map(ds, a.cfg)
	if err != nil {
		return err
	}
	pixel := a.cfg.GetPixelSizeM()
	fmt.Fprintf(a.out, "Flooding at %s\n", site.Name)
	for i, t := range floods.Times {
		l, _ := floods.Slice(i)
		fmt.Fprintf(a.out, "%s  %.2f ha\n", t.Format(cube.DateLayout), units.PixelsToHectares(l.Count(), pixel))
	}
	freq, err := flood.Frequency(ctx, floods, q.Time)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d pixels flooded at least once\n", freq.Count())

	if *store != "" {
		if err := storeStack(ctx, database, *store, "flood", floods); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "stored as %s\n", *store)
	}
	return nil
}

func runForest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("forest", flag.ContinueOnError)
	siteKey, from, to, store := siteFlags(fs, "1")
	if err := fs.Parse(args); err != nil {
		return err
	}
	site, err := lookupSite("forest", *siteKey)
	if err != nil {
		return err
	}
	q, err := forest.Query(site, *from, *to)
	if err != nil {
		return err
	}
	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ds, err := database.Load(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to load %s over %s: %w", q.Product, site.Name, err)
	}
	vh, err := ds.Band("VH")
	if err != nil {
		return err
	}
	monthly, err := forest.GroupByMonth(ctx, vh)
	if err != nil {
		return err
	}
	woody, err := forest.Map(ctx, monthly, a.cfg)
	if err != nil {
		return err
	}
	clearfells, err := forest.Clearfells(woody)
	if err != nil {
		return err
	}
	dates := forest.ClearfellDates(clearfells)
	fmt.Fprint(a.out, forest.Report(site.Name, forest.Areas(dates, a.cfg.GetPixelSizeM())))

	if *store != "" {
		if err := storeStack(ctx, database, *store, "forest", woody); err != nil {
			return err
		}
		if err := database.PutDataset(ctx, *store+"_clearfell_dates", cube.FromLayer("year", dates)); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "stored as %s and %s_clearfell_dates\n", *store, *store)
	}
	return nil
}

func runFire(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("fire", flag.ContinueOnError)
	siteKey, from, to, store := siteFlags(fs, "1")
	normalise := fs.Bool("normalise", true, "Scale raw reflectances before computing NBR")
	if err := fs.Parse(args); err != nil {
		return err
	}
	site, err := lookupSite("fire", *siteKey)
	if err != nil {
		return err
	}
	q, err := site.Query(*from, *to, sites.S2Product, "nir", "swir2")
	if err != nil {
		return err
	}
	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ds, err := database.Load(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to load %s over %s: %w", q.Product, site.Name, err)
	}
	burn, err := fire.BurnMap(ds, a.cfg, *normalise)
	if err != nil {
		return err
	}
	pixel := a.cfg.GetPixelSizeM()
	fmt.Fprintf(a.out, "Burnt area at %s\n", site.Name)
	for _, line := range fire.ReportMaxBurnExtent(fire.BurntArea(burn, pixel)) {
		fmt.Fprintln(a.out, line)
	}

	habitats, err := habitat.LoadMap(ctx, database, site.Extent)
	switch {
	case errors.Is(err, cube.ErrNoData):
		log.Printf("[fire] no habitat map over %s, skipping the habitat report", site.Name)
	case err != nil:
		return err
	default:
		r, err := fire.ReportBurntHabitats(ctx, burn, habitats, pixel)
		if err != nil {
			return err
		}
		printHabitatReport(a, r)
	}

	if *store != "" {
		if err := storeStack(ctx, database, *store, "burn", burn); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "stored as %s\n", *store)
	}
	return nil
}

func printHabitatReport(a *app, r *fire.HabitatReport) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "HABITAT")
	years := append([]int(nil), r.Years...)
	sort.Ints(years)
	for _, y := range years {
		fmt.Fprintf(tw, "\t%d", y)
	}
	fmt.Fprintln(tw)
	for _, h := range r.Habitats {
		fmt.Fprint(tw, h)
		for _, y := range years {
			fmt.Fprintf(tw, "\t%.2f", r.Hectares[y][h])
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}
