package hooks

import (
	"context"
	"errors"
	"reflect"
	"strings"
)

type typedError interface {
	ErrorType() string
}

// ErrorType returns the classification tag carried by error events.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	var typed typedError
	if errors.As(err, &typed) {
		if tag := typed.ErrorType(); tag != "" {
			return tag
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	}

	name := reflect.TypeOf(err).String()
	name = strings.TrimLeft(name, "*")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	switch name {
	case "", "errorString", "wrapError", "wrapErrors", "joinError":
		return "Error"
	}
	return name
}
