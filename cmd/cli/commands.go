package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"advodash/internal/dataset"
	"advodash/internal/export"
	"advodash/internal/query"
	"advodash/internal/stats"
	"advodash/pkg/models"
	"advodash/pkg/utils"
)

// env carries the flags every local command shares.
type env struct {
	cfg    utils.Config
	stdout io.Writer
}

func (e *env) cache() *dataset.Cache {
	return dataset.New(dataset.Config{
		SourcePath:     e.cfg.SourcePath,
		Sheet:          e.cfg.Sheet,
		MirrorPath:     e.cfg.MirrorPath,
		RebuildTimeout: e.cfg.RebuildTimeout,
	})
}

func (e *env) load(ctx context.Context) (*models.Dataset, error) {
	c := e.cache()
	defer c.Close()
	return c.Get(ctx)
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	e := &env{cfg: utils.LoadConfig(), stdout: stdout}

	root := &cobra.Command{
		Use:           "advodash",
		Short:         "Inspect the advocate dataset from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)

	flags := root.PersistentFlags()
	flags.StringVar(&e.cfg.SourcePath, "source", e.cfg.SourcePath, "source spreadsheet (.xlsx, .csv, .tsv)")
	flags.StringVar(&e.cfg.Sheet, "sheet", e.cfg.Sheet, "xlsx sheet name, first sheet when empty")
	flags.StringVar(&e.cfg.MirrorPath, "mirror", e.cfg.MirrorPath, "JSON mirror path")
	flags.DurationVar(&e.cfg.RebuildTimeout, "timeout", e.cfg.RebuildTimeout, "rebuild timeout")

	root.AddCommand(
		newRebuildCommand(e),
		newSummaryCommand(e),
		newTopCommand(e),
		newDuplicatesCommand(e),
		newQueryCommand(e),
		newExportCommand(e),
		newWatchCommand(e),
	)
	return root
}

func newRebuildCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Parse the source and rewrite the mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := e.cache()
			defer c.Close()
			// skip a fresh mirror: rebuild means parse
			c.Invalidate()
			ds, err := c.Get(cmd.Context())
			if err != nil {
				return err
			}
			st := c.Stats()
			if st.MirrorWriteFailures > 0 {
				return fmt.Errorf("%w: %s", dataset.ErrMirrorWriteFailed, e.cfg.MirrorPath)
			}
			fmt.Fprintf(e.stdout, "loaded %d records (%d rejected) from %s\n",
				ds.Len(), ds.Diagnostics().Rejected, ds.Meta().SourcePath)
			for _, s := range ds.Diagnostics().Samples {
				fmt.Fprintf(e.stdout, "  row %d: %s\n", s.Row, s.Reason)
			}
			if ds.Meta().FromMirror {
				fmt.Fprintf(e.stdout, "warning: source unreadable, kept mirror %s\n", e.cfg.MirrorPath)
			}
			return nil
		},
	}
}

func newSummaryCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the KPI summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			return e.printJSON(stats.Summarize(ds))
		},
	}
}

func newTopCommand(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "top <field>",
		Short: "Rank the most frequent values of a field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := models.ParseField(args[0])
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("%w: limit must be >= 0, got %d", query.ErrInvalidQuery, limit)
			}
			ds, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			for _, c := range stats.TopBy(ds, field, limit) {
				fmt.Fprintf(tw, "%s\t%d\n", c.Value, c.Count)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of values")
	return cmd
}

func newDuplicatesCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "List records sharing name and phone",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			rep := stats.Duplicates(ds)
			fmt.Fprintf(e.stdout, "%d records in %d groups\n", rep.Members, len(rep.Groups))
			for _, g := range rep.Groups {
				r := ds.At(g.Indices[0])
				fmt.Fprintf(e.stdout, "%dx %s (%s) rows %v\n", len(g.Indices), r.Name, r.Phone, g.Indices)
			}
			return nil
		},
	}
}

func newQueryCommand(e *env) *cobra.Command {
	var (
		search   string
		filters  []string
		exact    []string
		sortBy   string
		page     int
		pageSize int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Search, filter, sort and page through records",
		Example: `  advodash query --search acme
  advodash query --filter state=kar --eq city=Bengaluru --sort -name --page 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := query.Request{
				Filter:   query.Filter{Search: search},
				Page:     page,
				PageSize: pageSize,
			}
			for _, set := range []struct {
				vals  []string
				exact bool
			}{{filters, false}, {exact, true}} {
				for _, kv := range set.vals {
					ff, err := parseFieldFilter(kv, set.exact)
					if err != nil {
						return err
					}
					req.Filter.Fields = append(req.Filter.Fields, ff)
				}
			}
			if sortBy != "" {
				f, err := models.ParseField(strings.TrimPrefix(sortBy, "-"))
				if err != nil {
					return fmt.Errorf("%w: sort: %v", query.ErrInvalidQuery, err)
				}
				req.Sort = &query.Sort{Field: f, Desc: strings.HasPrefix(sortBy, "-")}
			}

			ds, err := e.load(cmd.Context())
			if err != nil {
				return err
			}
			res, err := query.Run(ds, req, query.Limits{
				MinPageSize:     e.cfg.PageMin,
				MaxPageSize:     e.cfg.PageMax,
				DefaultPageSize: e.cfg.PageDefault,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return e.printJSON(res)
			}

			tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, strings.Join(export.Header, "\t"))
			for _, r := range res.Rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Owner, r.City, r.State, r.Phone)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "page %d, %d of %d matching\n", res.Page, len(res.Rows), res.TotalMatching)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&search, "search", "s", "", "case-insensitive substring over every field")
	flags.StringArrayVar(&filters, "filter", nil, "field=value substring filter, repeatable")
	flags.StringArrayVar(&exact, "eq", nil, "field=value exact filter, repeatable")
	flags.StringVar(&sortBy, "sort", "", "sort field, prefix with - for descending")
	flags.IntVar(&page, "page", 1, "1-based page")
	flags.IntVar(&pageSize, "page-size", 0, "rows per page, 0 for the default")
	flags.BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func parseFieldFilter(kv string, exact bool) (query.FieldFilter, error) {
	name, value, ok := strings.Cut(kv, "=")
	if !ok {
		return query.FieldFilter{}, fmt.Errorf("%w: filter %q: want field=value", query.ErrInvalidQuery, kv)
	}
	f, err := models.ParseField(name)
	if err != nil {
		return query.FieldFilter{}, fmt.Errorf("%w: filter: %v", query.ErrInvalidQuery, err)
	}
	return query.FieldFilter{Field: f, Value: value, Exact: exact}, nil
}

func newExportCommand(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <csv|xlsx>",
		Short: "Write the full dataset as CSV or Excel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(args[0])
			if err != nil {
				return err
			}
			ds, err := e.load(cmd.Context())
			if err != nil {
				return err
			}

			if out == "-" {
				return export.Write(e.stdout, ds, format)
			}
			if out == "" {
				out = format.FileName()
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.Write(f, ds, format); err != nil {
				_ = f.Close()
				return fmt.Errorf("export %s: %w", out, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "exported %d records to %s\n", ds.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", `output path, "-" for stdout (default advocates.<format>)`)
	return cmd
}
