package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/fulmenhq/draftfix/pkg/bundle"
)

// SchemeFile is the route for plain local paths as well as file:// locators.
const SchemeFile = "file"

// Router dispatches a locator to the Fetcher registered for its scheme.
type Router struct {
	routes map[string]Fetcher
}

// NewRouter creates an empty Router
func NewRouter() *Router {
	return &Router{routes: make(map[string]Fetcher)}
}

// Handle registers f for scheme, replacing any previous registration.
func (r *Router) Handle(scheme string, f Fetcher) *Router {
	r.routes[strings.ToLower(scheme)] = f
	return r
}

// Scheme returns the routing scheme of locator. Paths without a scheme,
// including Windows drive paths, route to SchemeFile.
func Scheme(locator string) string {
	if bundle.IsAbsoluteRef(locator) && !strings.HasPrefix(locator, "file:") {
		return SchemeFile
	}
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return SchemeFile
	}
	return strings.ToLower(u.Scheme)
}

// Fetch routes the request.
func (r *Router) Fetch(ctx context.Context, locator, destPath string) error {
	scheme := Scheme(locator)
	f, ok := r.routes[scheme]
	if !ok {
		return &FetchError{Locator: locator, Wrapped: fmt.Errorf("%w %q", ErrUnsupportedScheme, scheme)}
	}
	return f.Fetch(ctx, locator, destPath)
}
