// Package http provides the retrying HTTP client used to talk to the catalog
// service and the archive endpoints.
//
// This package handles:
//   - URL prefix substitution before every request
//   - A fixed number of attempts with a fixed delay between them
//   - Typed errors that separate transport failures from bad statuses
//
// Only transport failures are retried. A response with an unexpected status
// is handed back to the caller, who decides with CheckStatus.
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    Timeout:  60 * time.Second,
//	    Attempts: 5,
//	    Delay:    5 * time.Second,
//	    Substitutions: http.Substitutions{
//	        {From: "http://internal:8080", To: "https://archive.example.com"},
//	    },
//	})
//
//	resp, err := client.Get(ctx, url)
//	if err != nil {
//	    // *TransportError after all attempts failed
//	}
//	defer resp.Body.Close()
//	if err := http.CheckStatus(resp, 200); err != nil {
//	    // *UnexpectedStatusError
//	}
package http
