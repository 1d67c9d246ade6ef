// internal/navigation/resolver.go
package navigation

import (
	"fmt"
	"net/url"
	"strings"
)

// Method is how the flow reaches the next page.
type Method string

const (
	// MethodFollowURL loads the href directly.
	MethodFollowURL Method = "follow-url"
	// MethodClickElement simulates a click on the element.
	MethodClickElement Method = "click-element"
)

// noOpMarkers are hrefs that only make sense as click handlers.
var noOpMarkers = map[string]struct{}{
	"#":                  {},
	"javascript:void(0)": {},
	"javascript:;":       {},
}

// Resolve picks the navigation method for an element's href. It is total:
// anything it does not recognise as a real link is clicked.
func Resolve(href string) Method {
	h := strings.ToLower(href)
	if h == "" {
		return MethodClickElement
	}
	if _, ok := noOpMarkers[h]; ok {
		return MethodClickElement
	}
	if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") || strings.HasPrefix(h, "/") {
		return MethodFollowURL
	}
	return MethodClickElement
}

// ResolveURL turns an href accepted by Resolve into an absolute URL, joining
// relative paths against base.
func ResolveURL(base, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	if !b.IsAbs() {
		return "", fmt.Errorf("cannot resolve %q against relative base %q", href, base)
	}
	return b.ResolveReference(ref).String(), nil
}
