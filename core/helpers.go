package orchestration

import "fmt"

// panicSafe runs a collaborator callback, turning a panic into an error.
func panicSafe(name string, run func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s panicked: %v", name, recovered)
		}
	}()

	if err = run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}

	return nil
}
