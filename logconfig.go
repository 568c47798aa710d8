package twitch_widget

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var (
	logger  = logrus.New()
	Version = "0.3.0"
	Build   string
	Log     = logger.WithFields(logrus.Fields{"App_name": "twitch_tmux_widget", "App_version": Version + "_" + Build})
)

// LogSetup configures the package logger. Output goes to stderr: stdout is
// reserved for the status line.
func (a *AuthConfig) LogSetup() {
	logger.SetOutput(os.Stderr)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		// Log as JSON instead of the default ASCII formatter.
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	a.LogLevel = strings.ToUpper(a.LogLevel)
	switch a.LogLevel {
	case "DEBUG":
		logger.SetLevel(logrus.DebugLevel)
		file, err := os.OpenFile("twitch-tmux-widget.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			mw := io.MultiWriter(os.Stderr, file)
			logger.SetOutput(mw)
		}
	case "TRACE":
		logger.SetLevel(logrus.TraceLevel)
	case "WARN":
		logger.SetLevel(logrus.WarnLevel)
	case "ERROR":
		logger.SetLevel(logrus.ErrorLevel)
	case "FATAL":
		logger.SetLevel(logrus.FatalLevel)
	case "PANIC":
		logger.SetLevel(logrus.PanicLevel)
	case "INFO":
		logger.SetLevel(logrus.InfoLevel)
	default:
		Log.Errorf("invalid log level: %s", a.LogLevel)
	}
}
