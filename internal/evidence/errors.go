package evidence

import "fmt"

// ConfigurationError is a local validation failure detected before any
// remote work is attempted.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "evidence: invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("evidence: invalid configuration (%s): %s", e.Field, e.Reason)
}

// Is matches any *ConfigurationError so callers can test the class with
// errors.Is(err, &ConfigurationError{}).
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}
