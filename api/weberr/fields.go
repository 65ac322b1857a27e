package weberr

import "errors"

type fielder interface {
	Fields() map[string]any
}

// Fields collects the log fields attached anywhere in the chain of err.
// Outer wrappers win over inner ones on key collisions.
func Fields(err error) (map[string]any, bool) {
	var out map[string]any
	for err != nil {
		var fe fielder
		if !errors.As(err, &fe) {
			break
		}
		if out == nil {
			out = make(map[string]any)
		}
		for k, v := range fe.Fields() {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
		err = errors.Unwrap(fe.(error))
	}
	return out, out != nil
}

type fieldsError struct {
	error
	fields map[string]any
}

func (e *fieldsError) Fields() map[string]any { return e.fields }

func (e *fieldsError) Unwrap() error { return e.error }
