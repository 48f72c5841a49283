package coreg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Mode of the coregistration
type Mode string

const (
	Local  Mode = "local"
	Global Mode = "global"
)

// ParseMode returns the mode with the given name ("" for local)
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", Local:
		return Local, nil
	case Global:
		return Global, nil
	}
	return "", fmt.Errorf("ParseMode: unknown mode %s", s)
}

// Coregistrator aligns the target raster on the reference raster and writes the result in out
type Coregistrator interface {
	Coregister(ctx context.Context, ref, target, out string) error
}

// Args returns the arguments of the arosics command line
func Args(mode Mode, ref, target, out string) []string {
	if mode == "" {
		mode = Local
	}
	return []string{string(mode), ref, target,
		"-o", out,
		"-fmt_out", "GTIFF",
		"-rsp_alg_deshift", "nearest",
		"-align_grids", "1",
	}
}

// OutputPath returns <outDir>/<name>_coreg.tif
func OutputPath(outDir, target string) string {
	name := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	return filepath.Join(outDir, name+"_coreg."+string(service.ExtensionGTiff))
}

// Report of a batch
type Report struct {
	Reference string   `json:"reference"`
	Done      []string `json:"done"`
	Skipped   []string `json:"skipped"`
	Failed    []string `json:"failed"`
}

// Batch coregisters all the files on the first one (sorted by name) and writes the results in outDir.
// Existing outputs are skipped. Failures are logged and the next file is processed, unless the error is fatal.
func Batch(ctx context.Context, c Coregistrator, files []string, outDir string) (Report, error) {
	if len(files) == 0 {
		return Report{}, errors.New("Batch: no file")
	}
	files = append([]string(nil), files...)
	sort.Strings(files)
	report := Report{Reference: files[0]}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := OutputPath(outDir, f)
		if service.FileExists(out) {
			report.Skipped = append(report.Skipped, out)
			continue
		}
		if err := c.Coregister(log.With(ctx, "target", filepath.Base(f)), report.Reference, f, out); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			if service.Fatal(err) {
				report.Failed = append(report.Failed, f)
				return report, fmt.Errorf("Batch.%w", err)
			}
			log.Logger(ctx).Error("coregistration failed", zap.String("target", f), zap.Error(err))
			report.Failed = append(report.Failed, f)
			continue
		}
		report.Done = append(report.Done, out)
	}
	return report, nil
}

// arosicsLogFilter formats the logs of arosics and keeps the last error
type arosicsLogFilter struct {
	lastError string
}

var temporaryErrs = []string{
	"temporary failure",
	"timed out",
}

// Filter implements log.Filter
func (f *arosicsLogFilter) Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool) {
	msg = strings.TrimSuffix(msg, "\n")
	trimmed := strings.TrimSpace(msg)
	switch {
	case trimmed == "":
		return msg, defaultLevel, true
	case strings.HasPrefix(trimmed, "Traceback"), strings.HasPrefix(trimmed, "File \""):
		return msg, zapcore.DebugLevel, false
	case strings.Contains(trimmed, "Error:"):
		f.lastError = trimmed
		return msg, zapcore.ErrorLevel, false
	case strings.HasPrefix(trimmed, "WARNING"), strings.Contains(trimmed, "Warning:"):
		return msg, zapcore.WarnLevel, false
	}
	return msg, zapcore.DebugLevel, false
}

// WrapError adds the last error logged by arosics
func (f *arosicsLogFilter) WrapError(err error) error {
	if f.lastError == "" || err == nil {
		return err
	}
	err = fmt.Errorf("%w (%s)", err, f.lastError)
	lower := strings.ToLower(f.lastError)
	for _, tmpErr := range temporaryErrs {
		if strings.Contains(lower, tmpErr) {
			return service.MakeTemporary(err)
		}
	}
	return err
}
