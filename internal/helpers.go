package internal

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// normalizeLongFlags accepts single-dash long flags such as -domain.
func normalizeLongFlags(args []string) []string {
	var out []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") &&
			!strings.HasPrefix(arg, "--") &&
			len(arg) > 2 &&
			arg[1] != '-' &&
			!strings.HasPrefix(arg[2:], "=") {
			out = append(out, "--"+arg[1:])
			continue
		}
		out = append(out, arg)
	}
	return out
}

// findWordlist returns path when it exists, otherwise the first list
// found next to the working directory, otherwise path unchanged.
func findWordlist(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	candidates := []string{
		filepath.Join(wd, "subdomains.txt"),
		filepath.Join(wd, "dict", "subdomains.txt"),
		filepath.Join(wd, "data", "subdomains.txt"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return path
}

func newLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	log.SetLevel(logrus.InfoLevel)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
