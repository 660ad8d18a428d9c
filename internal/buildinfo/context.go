// Package buildinfo contains build-time metadata kept separate from user configuration
package buildinfo

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	Version() string
	BuildDate() string
	SystemID() string
}

// Context contains build-time metadata that is not user-configurable.
// It is created at startup and passed to the components that report it.
type Context struct {
	version   string
	buildDate string
	systemID  string
}

// NewContext returns a Context for the given values.
func NewContext(version, buildDate, systemID string) *Context {
	return &Context{
		version:   version,
		buildDate: buildDate,
		systemID:  systemID,
	}
}

// WithSystemID returns a copy of c carrying systemID.
func (c *Context) WithSystemID(systemID string) *Context {
	if c == nil {
		return NewContext("", "", systemID)
	}
	return NewContext(c.version, c.buildDate, systemID)
}

// Version returns the build version tag
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the time the binary was built
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// SystemID returns the anonymous identifier of this installation
func (c *Context) SystemID() string {
	if c == nil || c.systemID == "" {
		return UnknownValue
	}
	return c.systemID
}
