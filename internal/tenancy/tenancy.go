// Package tenancy derives the tenant a request belongs to from its host and path, and carries the
// resolved tenant through a request context.
//
// Candidate derivation is pure string work. Looking the candidate up in the tenant directory, and
// deciding what to do when it is missing, is the job of the HTTP middleware.
package tenancy

import (
	"context"
	"net"
	"regexp"
	"strings"
)

// MaxSlugLength is the longest slug accepted; it matches the DNS label limit so every slug can
// also be used as a subdomain.
const MaxSlugLength = 63

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a lowercase alphanumeric slug with single inner hyphens.
func ValidSlug(s string) bool {
	return len(s) <= MaxSlugLength && slugPattern.MatchString(s)
}

// Source records where a candidate slug came from.
type Source string

const (
	SourceNone    Source = ""
	SourceHost    Source = "host"
	SourcePath    Source = "path"
	SourceSession Source = "session"
)

// Default reserved words. A host label or leading path segment equal to one of these never names a tenant.
var (
	DefaultReservedLabels   = []string{"www", "api"}
	DefaultReservedPrefixes = []string{"api", "login", "signup", "auth"}
)

// Resolver derives candidate tenant slugs.
type Resolver struct {
	appDomains       []string
	reservedLabels   map[string]bool
	reservedPrefixes map[string]bool
}

// NewResolver builds a Resolver. appDomains are the application domain suffixes (for example
// "app.example"); a nil reserved list selects the defaults.
func NewResolver(appDomains, reservedLabels, reservedPrefixes []string) *Resolver {
	if reservedLabels == nil {
		reservedLabels = DefaultReservedLabels
	}
	if reservedPrefixes == nil {
		reservedPrefixes = DefaultReservedPrefixes
	}

	r := &Resolver{
		reservedLabels:   toSet(reservedLabels),
		reservedPrefixes: toSet(reservedPrefixes),
	}
	for _, d := range appDomains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			r.appDomains = append(r.appDomains, d)
		}
	}
	return r
}

// Candidate returns the tenant slug named by the request, if any. A slug in the host takes
// precedence over one in the path. Reserved words are never returned.
func (r *Resolver) Candidate(host, path string) (string, Source) {
	if slug := r.FromHost(host); slug != "" {
		return slug, SourceHost
	}
	if slug := r.FromPath(path); slug != "" {
		return slug, SourcePath
	}
	return "", SourceNone
}

// FromHost returns the leftmost label of host when host is a subdomain of a configured
// application domain and the label is not reserved.
func (r *Resolver) FromHost(host string) string {
	host = strings.ToLower(stripPort(strings.TrimSpace(host)))
	host = strings.TrimSuffix(host, ".")

	for _, domain := range r.appDomains {
		if !strings.HasSuffix(host, "."+domain) {
			continue
		}
		sub := strings.TrimSuffix(host, "."+domain)
		label := sub
		if i := strings.IndexByte(sub, '.'); i >= 0 {
			label = sub[:i]
		}
		if label == "" || r.reservedLabels[label] {
			return ""
		}
		return label
	}
	return ""
}

// FromPath returns the first non-empty path segment unless it is a reserved route prefix.
func (r *Resolver) FromPath(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if r.reservedPrefixes[strings.ToLower(seg)] {
			return ""
		}
		return seg
	}
	return ""
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[strings.ToLower(v)] = true
	}
	return out
}

// Info is the resolved tenant carried through a request.
type Info struct {
	ID     string
	Slug   string
	Source Source
}

type tenantCtxKey struct{}

// WithInfo returns a copy of ctx carrying info.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, info)
}

// FromContext returns the tenant stored in ctx.
func FromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(tenantCtxKey{}).(Info)
	if !ok || info.ID == "" {
		return Info{}, false
	}
	return info, true
}

// IDFromContext returns the resolved tenant ID, or "" when the request is unscoped.
func IDFromContext(ctx context.Context) string {
	info, _ := FromContext(ctx)
	return info.ID
}
