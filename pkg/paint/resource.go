package paint

import "strings"

// Resource is anything the client can fetch by URI.
type Resource interface {
	URI() string
}

// ThemeResource is a file inside the active theme.
type ThemeResource struct {
	Path string
}

func (r ThemeResource) URI() string { return "theme://" + strings.TrimPrefix(r.Path, "/") }

// ExternalResource is an absolute URL outside the application.
type ExternalResource struct {
	URL string
}

func (r ExternalResource) URI() string { return r.URL }

// ApplicationResource is served by the application itself under a key that
// is unique within the session.
type ApplicationResource struct {
	Key      string
	Filename string
}

func (r ApplicationResource) URI() string {
	return "app://APP/" + r.Key + "/" + r.Filename
}
