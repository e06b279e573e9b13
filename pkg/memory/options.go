package memory

// AddOption is a function type for configuring Add operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type AddOption func(*AddOptions)

// AddOptions contains configuration options for Add operations.
type AddOptions struct {
	// MemoryType is the tier of the record. Defaults to TypeHistory.
	MemoryType Type

	// Tags are free-form labels attached to the record.
	Tags []string

	// Importance is the eviction weight in [0,1]. Defaults to 0.3.
	Importance float64
}

// WithMemoryType sets the record's tier.
//
// Example:
//
//	id, _ := store.Add(ctx, "u1", "likes black tea", memory.WithMemoryType(memory.TypeLongTerm))
func WithMemoryType(t Type) AddOption {
	return func(opts *AddOptions) {
		opts.MemoryType = t
	}
}

// WithTags sets the record's tags.
func WithTags(tags ...string) AddOption {
	return func(opts *AddOptions) {
		opts.Tags = tags
	}
}

// WithImportance sets the record's importance. Values outside [0,1] are
// clamped at add time.
func WithImportance(importance float64) AddOption {
	return func(opts *AddOptions) {
		opts.Importance = importance
	}
}

// applyAddOptions applies the options on top of the defaults.
func applyAddOptions(opts []AddOption) *AddOptions {
	options := &AddOptions{
		MemoryType: TypeHistory,
		Importance: 0.3,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
