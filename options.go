package filewarden

// Option represents a configuration option for a single file operation
type Option func(*Options)

// Options contains all possible options for file operations
type Options struct {
	// ContentType specifies the MIME type of the file
	ContentType string

	// Metadata contains additional metadata for the file
	Metadata map[string]string

	// Overwrite determines whether to overwrite existing files
	Overwrite bool

	// Restricted tightens on-disk permissions (0600). Quarantine copies
	// are always written restricted.
	Restricted bool
}

// ProcessOptions applies a list of options to a fresh Options value.
// Drivers use this to interpret per-write options.
func ProcessOptions(options ...Option) *Options {
	opts := &Options{}
	for _, option := range options {
		option(opts)
	}
	return opts
}

// WithContentType sets the content type of the file
func WithContentType(contentType string) Option {
	return func(o *Options) {
		o.ContentType = contentType
	}
}

// WithMetadata sets additional metadata for the file
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithOverwrite enables or disables overwriting existing files
func WithOverwrite(overwrite bool) Option {
	return func(o *Options) {
		o.Overwrite = overwrite
	}
}

// WithRestricted marks the file for restrictive on-disk permissions
func WithRestricted(restricted bool) Option {
	return func(o *Options) {
		o.Restricted = restricted
	}
}
