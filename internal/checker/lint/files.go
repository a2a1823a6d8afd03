package lint

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultExtensions lists the file extensions linted when none are configured.
var DefaultExtensions = []string{".c", ".h", ".cpp", ".hpp", ".go", ".js", ".cs", ".java"}

// FileFindings groups the findings of one file.
type FileFindings struct {
	Path     string
	Findings []Finding
}

// Report is the result of linting a set of files. Files without findings are omitted.
type Report struct {
	Files []FileFindings
}

// OK reports whether no file produced a finding.
func (r Report) OK() bool {
	return len(r.Files) == 0
}

// ByPath returns the findings keyed by file path.
func (r Report) ByPath() map[string][]Finding {
	out := make(map[string][]Finding, len(r.Files))
	for _, f := range r.Files {
		out[f.Path] = f.Findings
	}
	return out
}

// String renders the human readable report:
//
//	--- path:
//	* Line N: kind
//
// with a blank line between files and no trailing newline after the last one.
func (r Report) String() string {
	var b strings.Builder
	for _, file := range r.Files {
		fmt.Fprintf(&b, "--- %s:\n", file.Path)
		for _, f := range file.Findings {
			fmt.Fprintf(&b, "* Line %d: %s\n", f.Line, f.Kind)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Files lints every file whose name ends with one of extensions.
// Files are visited in lexical path order so the report is stable.
func Files(files map[string]string, extensions []string) Report {
	if extensions == nil {
		extensions = DefaultExtensions
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		if hasExtension(p, extensions) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var report Report
	for _, p := range paths {
		findings := Code(files[p])
		if len(findings) > 0 {
			report.Files = append(report.Files, FileFindings{Path: p, Findings: findings})
		}
	}
	return report
}

func hasExtension(name string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
