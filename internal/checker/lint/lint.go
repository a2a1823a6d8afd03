// Package lint implements a lightweight style checker for C-like sources.
//
// The checker does not parse the language. It scans every line once, keeping
// track of string literals, line comments and brace depth, and reports
// indentation and comma spacing problems together with a missing final newline.
package lint

import "strings"

// Kind labels a finding.
type Kind string

const (
	KindIndentationMix    Kind = "indentation/mix"
	KindIndentationBad    Kind = "indentation/bad"
	KindSpacesPunctuation Kind = "spaces/punctuation"
	KindNoEndNewline      Kind = "line/noendnewline"
)

// Finding is one style violation. Line numbers start at 1.
type Finding struct {
	Line int  `json:"line"`
	Kind Kind `json:"kind"`
}

// noChar marks a missing previous or next character.
const noChar rune = -1

// Code lints one source text and returns its findings in line order.
func Code(code string) []Finding {
	findings := make([]Finding, 0)

	indentLevel := 0
	spaceLength, spaceLengthKnown := 0, false

	lines := strings.Split(code, "\n")
	lineNumber := 0
	for _, text := range lines {
		lineNumber++
		if text == "" {
			continue
		}
		line := []rune(text)
		n := len(line)

		isString := false
		isComment := false

		currentIndent := 0
		var indentSymbol rune = noChar
		needIndentationCheck := true
		checkingIndentation := true

		prev, cur := noChar, noChar
		next := line[0]

		levelDiffPos := 0
		levelDiffNeg := 0
		for i := 0; i < n; i++ {
			prev, cur = cur, next
			if i == n-1 {
				next = noChar
			} else {
				next = line[i+1]
			}

			if !isComment && cur == '"' && prev != '\\' {
				isString = !isString
			}
			if !isString && cur == '/' && next == '/' {
				isComment = true
			}
			if !isString && !isComment {
				switch cur {
				case '{':
					levelDiffPos++
				case '}':
					levelDiffNeg--
				}
			}

			if checkingIndentation {
				if cur != '\t' && cur != ' ' {
					if !spaceLengthKnown && indentSymbol == ' ' && indentLevel > 0 {
						spaceLength, spaceLengthKnown = currentIndent/indentLevel, true
					}
					checkingIndentation = false
					continue
				}
				if indentSymbol != noChar && cur != indentSymbol {
					needIndentationCheck = false
					findings = append(findings, Finding{Line: lineNumber, Kind: KindIndentationMix})
					checkingIndentation = false
				}
				indentSymbol = cur
				currentIndent++
				continue
			}

			if !isString && !isComment && cur == ',' && badCommaSpacing(line, i) {
				findings = append(findings, Finding{Line: lineNumber, Kind: KindSpacesPunctuation})
			}
		}

		// closing braces count against this line, opening braces against the next
		indentLevel += levelDiffNeg

		if needIndentationCheck {
			expected := indentLevel
			if indentSymbol == ' ' && spaceLengthKnown {
				expected *= spaceLength
			}
			if currentIndent != expected {
				findings = append(findings, Finding{Line: lineNumber, Kind: KindIndentationBad})
			}
		}

		indentLevel += levelDiffPos
	}

	if code != "" && !strings.HasSuffix(code, "\n") {
		findings = append(findings, Finding{Line: lineNumber, Kind: KindNoEndNewline})
	}

	return findings
}

// badCommaSpacing reports whether the comma at line[i] is preceded by a space,
// not followed by exactly one space, or followed by two spaces.
// A comma ending the line is accepted.
func badCommaSpacing(line []rune, i int) bool {
	n := len(line)
	spaceBefore := i > 0 && line[i-1] == ' '
	noSpaceAfter := i < n-1 && line[i+1] != ' '
	extraSpace := i < n-2 && line[i+2] == ' '
	return spaceBefore || noSpaceAfter || extraSpace
}
