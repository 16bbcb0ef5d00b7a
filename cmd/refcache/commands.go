package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-refcache/entitycache"
	"github.com/goliatone/go-refcache/pkg/di"
	"github.com/goliatone/go-refcache/refcache"
)

func newPageCmd(c *cli) *cobra.Command {
	var (
		qf     queryFlags
		fields []string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "page <collection>",
		Short: "Fetch one page of an index query with its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := qf.descriptor()
			if err != nil {
				return err
			}
			container, err := c.container()
			if err != nil {
				return err
			}
			view, err := container.Paginator().GetPage(cmd.Context(), args[0], desc, callOptions(fields, force)...)
			if err != nil {
				return err
			}
			return c.write(view)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&qf.page, "page", 1, "Page number, starting at 1")
	flags.IntVar(&qf.limit, "limit", 10, "Documents per page")
	flags.StringVar(&qf.creator, "creator", "", "Only documents created by this id")
	flags.StringArrayVar(&qf.searches, "search", nil, `Filter group "values=a,b;fields=x,y" (repeatable)`)
	flags.StringArrayVar(&qf.excludes, "exclude", nil, `Exclusion group "values=a,b;fields=x,y" (repeatable)`)
	flags.StringArrayVar(&qf.params, "param", nil, "Pass-through parameter key=value (repeatable)")
	flags.StringArrayVar(&qf.sorts, "sort", nil, "Sort entry field[:asc|desc], highest priority first (repeatable)")
	flags.StringSliceVar(&fields, "fields", nil, "Only hydrate these fields")
	flags.BoolVar(&force, "force", false, "Bypass the index memo and refetch documents")
	return cmd
}

func newSliceCmd(c *cli) *cobra.Command {
	var (
		ids         []string
		page, limit int
		fields      []string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "slice <collection>",
		Short: "Page through a caller-supplied id list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.container()
			if err != nil {
				return err
			}
			view, err := container.Paginator().GetSlice(cmd.Context(), args[0], ids, page, limit, callOptions(fields, force)...)
			if err != nil {
				return err
			}
			return c.write(view)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&ids, "ids", nil, "Comma separated document ids")
	flags.IntVar(&page, "page", 1, "Page number, starting at 1")
	flags.IntVar(&limit, "limit", 10, "Documents per page")
	flags.StringSliceVar(&fields, "fields", nil, "Only hydrate these fields")
	flags.BoolVar(&force, "force", false, "Refetch documents even when cached")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}

func newHydrateCmd(c *cli) *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:   "hydrate <collection> <id>...",
		Short: "Fetch documents by id",
		Long: `Fetch documents by id. Documents that could not be fetched are reported
on stderr; the ones that were are still printed, in argument order.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := c.container()
			if err != nil {
				return err
			}
			collection, ids := args[0], args[1:]

			docs, err := container.Hydrator().Hydrate(cmd.Context(), collection, ids, fields...)
			var herr *refcache.HydrationError
			if err != nil && !errors.As(err, &herr) {
				return err
			}

			out := make([]entitycache.Entity, 0, len(docs))
			for _, id := range dedupe(ids) {
				if doc, ok := docs[id]; ok {
					out = append(out, doc)
				}
			}
			if werr := c.write(out); werr != nil {
				return werr
			}
			if herr != nil {
				missing := append([]string(nil), herr.Missing...)
				sort.Strings(missing)
				fmt.Fprintf(c.errOut, "missing %d of %d: %v\n", len(missing), len(dedupe(ids)), missing)
				return herr
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Only hydrate these fields")
	return cmd
}

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := di.DefaultConfig()
			if err := c.v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("decoding config: %w", err)
			}
			enc := yaml.NewEncoder(c.out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func callOptions(fields []string, force bool) []refcache.CallOption {
	var opts []refcache.CallOption
	if len(fields) > 0 {
		opts = append(opts, refcache.WithFields(fields...))
	}
	if force {
		opts = append(opts, refcache.WithForce())
	}
	return opts
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
