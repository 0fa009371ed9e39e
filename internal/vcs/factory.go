package vcs

import "fmt"

// Factory creates VCS instances based on detected type and preferences.
type Factory struct {
	// preferredType specifies which VCS to prefer in colocated repos
	preferredType Type

	// detect is swapped in tests
	detect func(path string) (*DetectionResult, error)

	// available reports whether a backend binary can be run
	available func(Type) bool
}

// FactoryOption configures the factory
type FactoryOption func(*Factory)

// NewFactory creates a new VCS factory. Without options colocated
// repositories use PreferredVCS().
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		detect:    DetectWithAvailability,
		available: binaryAvailable,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithPreferredType sets the preferred VCS type for colocated repos
func WithPreferredType(t Type) FactoryOption {
	return func(f *Factory) {
		f.preferredType = t
	}
}

// Create creates a VCS instance for the given path.
func (f *Factory) Create(path string) (VCS, error) {
	result, err := f.detect(path)
	if err != nil {
		return nil, err
	}

	implType := f.implementationType(result)

	constructor := getConstructor(implType)
	if constructor == nil {
		return nil, fmt.Errorf("no registered constructor for VCS type: %s (available: %v)", implType, RegisteredTypes())
	}

	v, err := constructor(result.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s VCS instance: %w", implType, err)
	}
	return v, nil
}

// implementationType decides which backend serves a detected repository.
func (f *Factory) implementationType(result *DetectionResult) Type {
	switch result.Type {
	case TypeJJ:
		return TypeJJ
	case TypeColocate:
		preferred := f.preferredType
		if preferred == "" {
			preferred = PreferredVCS()
		}
		other := TypeJJ
		if preferred == TypeJJ {
			other = TypeGit
		}
		if f.available(preferred) {
			return preferred
		}
		if f.available(other) {
			return other
		}
		return preferred
	default:
		return TypeGit
	}
}

func binaryAvailable(t Type) bool {
	switch t {
	case TypeGit:
		return IsGitAvailable()
	case TypeJJ:
		return IsJJAvailable()
	}
	return false
}

// GetForPath returns a VCS instance for the specified path.
func GetForPath(path string) (VCS, error) {
	return NewFactory().Create(path)
}
