package main

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newGetCmd(a *app) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "get [url...]",
		Short: "Download archive links given on the command line or in a file",
		Long: `Download archive links without querying the catalog.

Links come from the arguments, or one per line from --from-file ("-" reads
stdin). Blank lines and lines starting with # are ignored.`,
		Example: `  dars get https://soi.example.com/download/123
  dars links -q minutes > links.txt && dars get --from-file links.txt -j 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && fromFile == "" {
				return exitWith(ExitInvalidArgs, fmt.Errorf("give links as arguments or with --from-file"))
			}

			b := batch{links: slices.Values(args), source: "command line", total: len(args)}
			if fromFile != "" {
				r := cmd.InOrStdin()
				if fromFile != "-" {
					f, err := os.Open(fromFile)
					if err != nil {
						return exitWith(ExitInvalidArgs, fmt.Errorf("open links file: %w", err))
					}
					defer f.Close()
					r = f
				}
				b = batch{links: readLinks(r, a.logger), source: fromFile}
			}

			if filter := a.filter(); filter != nil {
				b.links = filtered(b.links, filter)
				b.total = 0
			}

			hc := a.httpClient()
			defer hc.CloseIdleConnections()

			return a.fetchAll(cmd.Context(), hc, b, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&fromFile, "from-file", "f", "", `Read links from this file, one per line ("-" for stdin)`)
	return cmd
}

// readLinks yields the links in r one line at a time.
func readLinks(r io.Reader, logger *zap.Logger) iter.Seq[string] {
	return func(yield func(string) bool) {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !yield(line) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			logger.Error("read links", zap.Error(err))
		}
	}
}

func filtered(links iter.Seq[string], keep func(string) bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		for link := range links {
			if keep(link) && !yield(link) {
				return
			}
		}
	}
}
