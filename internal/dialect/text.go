package dialect

import (
	"strings"
)

// Lines splits text into lines without trailing newline characters.
func Lines(text string) []string {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func indentWidth(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

// Literals returns the zero-based lines of text that begin inside a
// multi-line string literal. Those lines are never measured or re-indented.
type Literals func(text string) map[int]bool

func literalLines(text string, lit Literals) map[int]bool {
	if lit == nil || !strings.Contains(text, "\n") {
		return nil
	}
	return lit(text)
}

func minIndent(lines []string, raw map[int]bool) int {
	min := -1
	for i, l := range lines {
		if raw[i] || strings.TrimSpace(l) == "" {
			continue
		}
		if w := indentWidth(l); min < 0 || w < min {
			min = w
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// Reindent strips the minimum indentation of text and prefixes the remaining
// lines with prefix. Blank lines become empty.
func Reindent(text, prefix string, lit Literals) string {
	raw := literalLines(text, lit)
	lines := Lines(text)
	min := minIndent(lines, raw)
	for i, l := range lines {
		switch {
		case raw[i]:
		case strings.TrimSpace(l) == "":
			lines[i] = ""
		default:
			lines[i] = prefix + l[min:]
		}
	}
	return strings.Join(trimBlank(lines), "\n")
}

// Dedent strips the minimum indentation found on non-blank lines.
func Dedent(text string, lit Literals) string {
	return Reindent(text, "", lit)
}

// Indent prefixes every non-blank line with prefix.
func Indent(text, prefix string, lit Literals) string {
	raw := literalLines(text, lit)
	lines := Lines(text)
	for i, l := range lines {
		switch {
		case raw[i]:
		case strings.TrimSpace(l) == "":
			lines[i] = ""
		default:
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// LineStart returns the offset of the first byte of the line containing off.
func LineStart(src []byte, off int) int {
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}

// Slice returns the text of [start,end), widened to the start of its line when
// only whitespace precedes start. Otherwise the text is padded to keep its column.
func Slice(src []byte, start, end int) string {
	ls := LineStart(src, start)
	if strings.TrimSpace(string(src[ls:start])) == "" {
		return string(src[ls:end])
	}
	return strings.Repeat(" ", start-ls) + string(src[start:end])
}

// LeadingComments moves start back over whole comment lines directly above it.
// marker is the line-comment token of the host language.
func LeadingComments(src []byte, start int, marker string) int {
	ls := LineStart(src, start)
	if strings.TrimSpace(string(src[ls:start])) != "" {
		return start
	}
	cur := ls
	for cur > 0 {
		prev := LineStart(src, cur-1)
		line := strings.TrimSpace(string(src[prev : cur-1]))
		if !strings.HasPrefix(line, marker) {
			break
		}
		cur = prev
	}
	if cur == ls {
		return start
	}
	return cur
}

// RemoveLines drops the given zero-based line numbers from text.
func RemoveLines(text string, drop map[int]bool) string {
	lines := Lines(text)
	kept := make([]string, 0, len(lines))
	for i, l := range lines {
		if drop[i] {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}
