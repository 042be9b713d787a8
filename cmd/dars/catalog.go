package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ligustah/dars/internal/catalog"
	darshttp "github.com/ligustah/dars/internal/http"
)

// queryFlags are shared by the commands that search the catalog.
type queryFlags struct {
	query  string
	params []string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&q.query, "query", "q", "", "Catalog search query (required)")
	cmd.Flags().StringArrayVarP(&q.params, "param", "p", nil, "Extra request parameter key=value (repeatable)")
}

func (q *queryFlags) request() (catalog.Request, error) {
	if q.query == "" {
		return catalog.Request{}, exitWith(ExitInvalidArgs, fmt.Errorf("--query is required"))
	}
	req := catalog.Request{Query: q.query, Params: map[string]string{}}
	for _, p := range q.params {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return catalog.Request{}, exitWith(ExitInvalidArgs, fmt.Errorf("invalid --param %q, want key=value", p))
		}
		req.Params[k] = v
	}
	return req, nil
}

// catalogClient builds the catalog client from the configuration.
func (a *app) catalogClient(hc *darshttp.Client) (*catalog.Client, error) {
	if err := a.cfg.RequireBaseURL(); err != nil {
		return nil, exitWith(ExitInvalidArgs, err)
	}

	var tmpl string
	if a.cfg.RequestTemplate != "" {
		data, err := os.ReadFile(a.cfg.RequestTemplate)
		if err != nil {
			return nil, exitWith(ExitInvalidArgs, fmt.Errorf("read request template: %w", err))
		}
		tmpl = string(data)
	}

	c, err := catalog.NewClient(hc, catalog.Options{
		BaseURL:  a.cfg.BaseURL,
		Template: tmpl,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, exitWith(ExitInvalidArgs, err)
	}
	return c, nil
}
