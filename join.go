package controllino

import "errors"

// joinErrors returns nil for an empty slice, so ProcessErrors is a no-op
// when nothing went wrong, and errors.Join otherwise, which keeps every
// individual error reachable via errors.Is/As.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
