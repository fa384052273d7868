// Package client provides the configurable HTTP client used to reach the
// upstream search API, built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("reposearch/1.0"),
//		client.WithThrottle(10, 1),
//		client.WithDefaultHeader("Accept", "application/json"),
//	)
//
// Default headers fill in only what a request leaves unset.
//
// # Making Requests
//
// Construct a [URL] and [Request], then execute with [Client.Do]:
//
//	u := client.URL("https", "api.github.com", "/search/repositories",
//		client.WithQueryStrings(map[string]string{"q": "go"}),
//	)
//	req, err := client.Request(ctx, u, http.MethodGet)
//	var hdr http.Header
//	err = c.Do(req, http.StatusOK, client.WithDestination(&result), client.WithResponseHeader(&hdr))
//
// A response whose status differs from the expected one is returned as an
// [*UnexpectedStatusError] carrying the status, a capped body and the
// response headers.
package client
