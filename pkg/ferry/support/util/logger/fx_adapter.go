package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx lifecycle events into the "fx" scope.
// Successful wiring events are DEBUG; failures are ERROR.
type FxLoggerAdapter struct {
	scope *Scope
}

// NewFxLoggerAdapter creates a new FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{scope: NewScope("fx")}
}

// LogEvent logs events from Fx.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		l.hook("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuted:
		l.hook("OnStop", e.FunctionName, e.Err)
	case *fxevent.Supplied:
		l.result("Supplied "+e.TypeName, e.Err)
	case *fxevent.Provided:
		for _, name := range e.OutputTypeNames {
			l.scope.Debug("Provided "+name, "", nil)
		}
		if e.Err != nil {
			l.scope.Error("Provide failed", "", map[string]interface{}{"error": e.Err})
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			l.scope.Error("Invoke failed", "", map[string]interface{}{"function": e.FunctionName, "error": e.Err})
		}
	case *fxevent.Stopping:
		l.scope.Debug("Stopping on signal "+e.Signal.String(), "", nil)
	case *fxevent.Stopped:
		l.result("Stopped", e.Err)
	case *fxevent.RollingBack:
		l.scope.Error("Start failed, rolling back", "", map[string]interface{}{"error": e.StartErr})
	case *fxevent.RolledBack:
		l.result("Rolled back", e.Err)
	case *fxevent.Started:
		l.result("Application started", e.Err)
	case *fxevent.LoggerInitialized:
		l.result("Logger initialized "+e.ConstructorName, e.Err)
	}
}

func (l *FxLoggerAdapter) hook(kind, functionName string, err error) {
	name := trimAnonymousSuffix(functionName)
	if err != nil {
		l.scope.Error(kind+" hook failed", "", map[string]interface{}{"function": name, "error": err})
		return
	}
	l.scope.Debug(kind+" hook executed", "", map[string]interface{}{"function": name})
}

func (l *FxLoggerAdapter) result(message string, err error) {
	if err != nil {
		l.scope.Error(message+" failed", "", map[string]interface{}{"error": err})
		return
	}
	l.scope.Debug(message, "", nil)
}

// trimAnonymousSuffix strips ".func1"-style suffixes from fx function names.
func trimAnonymousSuffix(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
