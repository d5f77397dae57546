package api

import (
	"net/url"
	"strconv"
	"strings"
)

// URL parameters and query parameters.
const (
	AppIDURLParam   = "appId"
	AddressURLParam = "address"
	NextQueryParam  = "next"  // pagination cursor of the account listing
	LimitQueryParam = "limit" // page size of the account listing
)

// Routes. Every application route lives under AppEndpoint.
const (
	PingEndpoint = "/ping"

	AppEndpoint      = "/apps/{" + AppIDURLParam + "}"
	CallEndpoint     = AppEndpoint + "/call"                           // POST: signed application call
	StateEndpoint    = AppEndpoint + "/state"                          // GET: global key-value state
	AccountsEndpoint = AppEndpoint + "/accounts"                       // GET: registered accounts, paginated
	AccountEndpoint  = AccountsEndpoint + "/{" + AddressURLParam + "}" // GET: local key-value state
)

// LogExcludedPrefixes are the request paths the logging middleware ignores.
var LogExcludedPrefixes = []string{
	PingEndpoint,
}

// Route fills the {name} placeholders of a route with the given name/value
// pairs. Values are path escaped, names without a placeholder are ignored
// and a trailing name without value is dropped.
func Route(route string, pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		route = strings.Replace(route, "{"+pairs[i]+"}", url.PathEscape(pairs[i+1]), 1)
	}
	return route
}

// AppRoute fills the application id of route plus any further pairs.
func AppRoute(route string, appID uint64, pairs ...string) string {
	return Route(route, append([]string{AppIDURLParam, strconv.FormatUint(appID, 10)}, pairs...)...)
}
