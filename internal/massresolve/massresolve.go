// Package massresolve hands candidate names to an external bulk resolver
// and classifies what comes back.
package massresolve

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ResolutionError means the bulk resolver could not be launched or did
// not finish cleanly. The run cannot verify anything after it.
type ResolutionError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("mass resolution %s: %v", e.Op, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Runner executes one bulk resolution: names from inputPath against the
// resolvers in resolversPath, JSON lines written to outputPath.
type Runner interface {
	Run(ctx context.Context, inputPath, resolversPath, outputPath string) error
}

// MassDNS runs the massdns binary.
type MassDNS struct {
	Path    string
	Timeout time.Duration
}

func (m *MassDNS) Run(
	ctx context.Context,
	inputPath, resolversPath, outputPath string,
) error {
	path := m.Path
	if path == "" {
		path = "massdns"
	}
	bin, err := exec.LookPath(path)
	if err != nil {
		return &ResolutionError{Op: "launch", Err: err}
	}

	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"-r", resolversPath,
		"-t", "A",
		"-o", "J",
		"-w", outputPath,
		inputPath,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &ResolutionError{
			Op:     "run",
			Err:    err,
			Stderr: lastLine(stderr.String()),
		}
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

type Resolver struct {
	runner  Runner
	workDir string
	log     logrus.FieldLogger
}

func New(runner Runner, workDir string, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{runner: runner, workDir: workDir, log: log}
}

// Resolve blocks until the bulk resolver has finished with every
// candidate. Any failure of the runner is returned as *ResolutionError.
func (r *Resolver) Resolve(
	ctx context.Context,
	candidates []string,
	resolversPath string,
) (*Result, error) {
	if len(candidates) == 0 {
		return &Result{}, nil
	}

	dir, err := os.MkdirTemp(r.workDir, "massresolve-")
	if err != nil {
		return nil, &ResolutionError{Op: "prepare", Err: err}
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "candidates.txt")
	output := filepath.Join(dir, "output.json")
	if err := writeLines(input, candidates); err != nil {
		return nil, &ResolutionError{Op: "prepare", Err: err}
	}

	r.log.WithField("candidates", len(candidates)).Info("starting mass resolution")
	if err := r.runner.Run(ctx, input, resolversPath, output); err != nil {
		var rerr *ResolutionError
		if errors.As(err, &rerr) {
			return nil, rerr
		}
		return nil, &ResolutionError{Op: "run", Err: err}
	}

	file, err := os.Open(output)
	if err != nil {
		return nil, &ResolutionError{Op: "read output", Err: err}
	}
	defer file.Close()

	res, errs := Parse(file)
	for _, perr := range errs {
		r.log.WithError(perr).Debug("skipping massdns output line")
	}
	r.log.WithFields(logrus.Fields{
		"resolved":   len(res.Resolved),
		"cname_only": len(res.CNAMEOnly),
		"skipped":    res.Skipped,
	}).Info("mass resolution finished")
	return res, nil
}

func writeLines(path string, lines []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
