package helpers

import (
	"log/slog"
	"os"
)

// SetupLogger returns a handler and a grouped logger for one component of the evaluator.
// When handler is nil a text handler on stdout is created under the component group, and
// a warning is logged so the missing configuration is visible.
//
// Parameters:
//   - handler: The slog.Handler to use, or nil for defaults
//   - component: The owning package (e.g., "engine", "compiler")
//   - groupName: Optional group for the type inside the component
func SetupLogger(handler slog.Handler, component string, groupName string) (slog.Handler, *slog.Logger) {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, nil).WithGroup(component)
		slog.New(handler).Warn("Handler is nil, using the default logger configuration.")
	}

	if groupName == "" {
		return handler, slog.New(handler)
	}
	return handler, slog.New(handler.WithGroup(groupName))
}

// LoggerOrHandler resolves the pair of logging options accepted by the constructors in this
// module. An explicit logger wins over a handler.
func LoggerOrHandler(logger *slog.Logger, handler slog.Handler, component, groupName string) (slog.Handler, *slog.Logger) {
	if logger != nil {
		return logger.Handler(), logger
	}
	return SetupLogger(handler, component, groupName)
}
