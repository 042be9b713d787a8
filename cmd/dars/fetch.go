package main

import (
	"github.com/spf13/cobra"
)

func newFetchCmd(a *app) *cobra.Command {
	var q queryFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Search the catalog and download every archive it lists",
		Long: `Search the catalog, then download each archive link in the response.

Archives are named after the Content-Disposition header of each link. Names
that repeat within one run get a _02, _03, ... suffix. With --bucket every
archive is also uploaded under --prefix; archives already in the bucket are
skipped.`,
		Example: `  dars fetch --base-url https://soi.example.com/search -q "year:2024" -j 4
  dars fetch -q minutes --bucket s3://archives --prefix soi/2024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := q.request()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			hc := a.httpClient()
			defer hc.CloseIdleConnections()

			c, err := a.catalogClient(hc)
			if err != nil {
				return err
			}

			links, err := c.Links(ctx, req, a.filter())
			if err != nil {
				return exitWith(ExitCatalogError, err)
			}

			return a.fetchAll(ctx, hc, batch{links: links, source: a.cfg.BaseURL}, cmd.ErrOrStderr())
		},
	}

	q.register(cmd)
	return cmd
}
