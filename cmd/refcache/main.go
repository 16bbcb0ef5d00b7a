package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goliatone/go-refcache/pkg/di"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "refcache",
		Short: "Browse a remote document store through the reference cache",
		Long: `refcache reads paginated views from a remote document store. Index pages
are fetched once per query and documents are hydrated in batches, so
overlapping views only pay for documents they have not seen yet.

Configuration precedence: flags > REFCACHE_* environment > refcache.yaml
(searched in . and $HOME/.refcache, or set with --config / REFCACHE_CONFIG).

Examples:
  # First page of a creator's courses
  refcache --base-url https://api.example.com/v1 page course --creator u1 --limit 5

  # Search two fields, newest first, only names
  refcache page course --search "values=go,rust;fields=name,tags" --sort created:desc --fields name

  # Page through a known id list
  refcache slice course --ids c1,c2,c3 --page 1 --limit 2

  # Hydrate specific documents as yaml
  refcache --format yaml hydrate course c1 c2`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.bind(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file path")
	pf.String("base-url", "", "Remote store API root")
	pf.Duration("timeout", 30*time.Second, "Per-request timeout")
	pf.Float64("rate-limit", 0, "Requests per second, 0 disables limiting")
	pf.Bool("no-coalesce", false, "Do not share in-flight batches between overlapping requests")
	pf.StringP("format", "f", formatJSON, "Output format: json|yaml")
	pf.BoolP("verbose", "v", false, "Log cache and transport activity to stderr")

	root.AddCommand(newPageCmd(c), newSliceCmd(c), newHydrateCmd(c), newConfigCmd(c))
	return root
}

// container wires a fresh session from the resolved configuration.
func (c *cli) container() (*di.Container, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return di.NewContainer(cfg, di.WithLogger(c.logger()))
}

func (c *cli) logger() *slog.Logger {
	if !c.v.GetBool("verbose") {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
