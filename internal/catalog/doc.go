// Package catalog talks to the archive catalog service (SOI) and pulls
// download links out of its responses.
//
// A search is a templated XML body posted to the catalog endpoint. The
// response is either XML, where links live in url/link/downloadLink/archiveUrl
// elements or href/url attributes, or an HTML page with anchors.
//
// # Usage
//
//	c, err := catalog.NewClient(httpClient, catalog.Options{BaseURL: baseURL})
//	links, err := c.Links(ctx, catalog.Request{Query: "year:2024"}, catalog.Contains(".zip"))
//	for link := range links {
//	    // ...
//	}
//
// Responses that cannot be parsed produce no links; the parse error is logged.
package catalog
