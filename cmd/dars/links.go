package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ligustah/dars/internal/catalog"
)

func newLinksCmd(a *app) *cobra.Command {
	var q queryFlags

	cmd := &cobra.Command{
		Use:   "links",
		Short: "Search the catalog and print the archive links without downloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := q.request()
			if err != nil {
				return err
			}

			hc := a.httpClient()
			defer hc.CloseIdleConnections()

			c, err := a.catalogClient(hc)
			if err != nil {
				return err
			}

			text, err := c.Query(cmd.Context(), req)
			if err != nil {
				return exitWith(ExitCatalogError, err)
			}

			links, err := catalog.ExtractAll(text, a.filter(), catalog.WithBaseURL(a.cfg.BaseURL))
			if err != nil {
				return exitWith(ExitCatalogError, err)
			}

			out := cmd.OutOrStdout()
			for _, link := range links {
				fmt.Fprintln(out, link)
			}
			return nil
		},
	}

	q.register(cmd)
	return cmd
}
