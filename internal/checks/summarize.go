package checks

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

// maxOutputBytes bounds how much of a captured output file is read.
const maxOutputBytes = 8 << 20

// ReadOutput reads a captured stage output file.
func ReadOutput(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open stage output: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxOutputBytes))
	if err != nil {
		return "", fmt.Errorf("read stage output %s: %w", path, err)
	}
	return string(data), nil
}

// Summarize parses output with the named parser. Unknown names use the
// generic parser.
func Summarize(parser, output string, outcome stage.Outcome) ParseResult {
	p, ok := Lookup(parser)
	if !ok {
		p = parsers[Generic]
	}
	return p.Parse(output, outcome)
}

// Attach reads the output file captured for each stage in outputs and
// stores its summary and findings on the matching result. parserFor maps a stage to its
// configured parser. Stages that already carry a summary are left alone.
//
// Summaries only decorate the report, so unreadable files are logged and
// skipped.
func Attach(results stage.Set, outputs map[stage.Name]string, parserFor func(stage.Name) string, logger *zap.SugaredLogger) stage.Set {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	for name, path := range outputs {
		if !results.Has(name) {
			logger.Warnw("output given for a stage with no result", "stage", name)
			continue
		}
		r := results.Get(name)
		if r.Summary != "" {
			continue
		}
		output, err := ReadOutput(path)
		if err != nil {
			logger.Warnw("stage output unavailable", "stage", name, "path", path, "error", err)
			continue
		}
		parsed := Summarize(parserFor(name), output, r.Outcome)
		if parsed.Summary == "" {
			continue
		}
		results = results.With(r.WithSummary(parsed.Summary).WithFindings(parsed.Findings))
		logger.Debugw("summarized stage output", "stage", name, "summary", parsed.Summary)
	}
	return results
}
