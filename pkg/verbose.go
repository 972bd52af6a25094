package sbforensics

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	globalVerboseLevel int
	debugFlags         map[string]bool
	logMu              sync.RWMutex
	log                = newDefaultLogger()
)

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// Logger returns the package logger
func Logger() *logrus.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

// SetLogger replaces the package logger; nil restores the default stderr logger
func SetLogger(l *logrus.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	if l == nil {
		l = newDefaultLogger()
	}
	log = l
	log.SetLevel(levelForVerbose(globalVerboseLevel))
}

// loggerOr returns l when set, otherwise the package logger
func loggerOr(l *logrus.Logger) *logrus.Logger {
	if l != nil {
		return l
	}
	return Logger()
}

func levelForVerbose(level int) logrus.Level {
	switch {
	case level <= 0:
		return logrus.WarnLevel
	case level == 1:
		return logrus.InfoLevel
	case level == 2:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// SetVerboseLevel sets the global verbose level (0=quiet, 1=basic, 2=detailed, 3=trace)
func SetVerboseLevel(level int) {
	logMu.Lock()
	defer logMu.Unlock()
	globalVerboseLevel = level
	log.SetLevel(levelForVerbose(level))
}

// GetVerboseLevel returns the current verbose level
func GetVerboseLevel() int {
	logMu.RLock()
	defer logMu.RUnlock()
	return globalVerboseLevel
}

// VerboseEnter logs function entry at level 3+ and returns a defer function for exit logging
func VerboseEnter() func() {
	if GetVerboseLevel() < 3 {
		return func() {}
	}

	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return func() {}
	}

	funcName := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndex(funcName, "."); idx != -1 {
		funcName = funcName[idx+1:]
	}

	l := Logger()
	l.Tracef("Entering function: %s", funcName)
	return func() {
		l.Tracef("Exiting function: %s", funcName)
	}
}

// VerboseLog logs a message at the specified verbose level
func VerboseLog(level int, format string, args ...interface{}) {
	if GetVerboseLevel() < level {
		return
	}
	format = strings.TrimSuffix(format, "\n")
	l := Logger()
	switch {
	case level <= 1:
		l.Infof(format, args...)
	case level == 2:
		l.Debugf(format, args...)
	default:
		l.Tracef(format, args...)
	}
}

// SetDebugFlags sets the debug flags from a comma-separated string
// Supports both simple flags ("build,probe") and key:value format ("build:true,probe:false")
func SetDebugFlags(flagsStr string) {
	flags := make(map[string]bool)
	for _, flag := range strings.Split(flagsStr, ",") {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}

		parts := strings.SplitN(flag, ":", 2)
		flagName := strings.ToLower(parts[0])
		flagValue := true

		if len(parts) > 1 {
			switch strings.ToLower(parts[1]) {
			case "false", "0", "no", "off":
				flagValue = false
			}
		}

		flags[flagName] = flagValue
	}

	logMu.Lock()
	debugFlags = flags
	logMu.Unlock()
}

// IsDebugEnabled returns true if the specified debug flag is enabled
func IsDebugEnabled(flag string) bool {
	logMu.RLock()
	defer logMu.RUnlock()
	if debugFlags == nil {
		return false
	}
	return debugFlags[strings.ToLower(flag)]
}
