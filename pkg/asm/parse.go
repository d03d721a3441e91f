package asm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rvgen/pkg/cpu"
)

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComment(raw))
	for line != "" {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			break
		}
		beforeColon := strings.TrimSpace(line[:colon])
		if beforeColon == "" {
			return p, fmt.Errorf("invalid label on line %d", lineNo)
		}
		if strings.ContainsAny(beforeColon, " \t\"") {
			break
		}
		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}
		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
	}
	if line == "" {
		return p, nil
	}

	rest := ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		line, rest = line[:i], line[i+1:]
	}
	p.mnemonic = strings.ToLower(line)

	ops, err := splitOperands(rest)
	if err != nil {
		return p, fmt.Errorf("%w on line %d", err, lineNo)
	}
	p.operands = ops
	return p, nil
}

// stripComment cuts a '#' comment that is not inside a string literal.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case inString && c == '\\':
			i++
		case c == '"':
			inString = !inString
		case c == '#' && !inString:
			return line[:i]
		}
	}
	return line
}

// splitOperands splits on commas outside string literals.
func splitOperands(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var ops []string
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case inString && c == '\\':
			i++
		case c == '"':
			inString = !inString
		case c == ',' && !inString:
			ops = append(ops, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if inString {
		return nil, errors.New("unterminated string literal")
	}
	ops = append(ops, strings.TrimSpace(s[start:]))
	for _, op := range ops {
		if op == "" {
			return nil, errors.New("empty operand")
		}
	}
	return ops, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '.', c == '$':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func parseRegister(token string, lineNo int) (uint32, error) {
	r, ok := cpu.RegNumber(strings.ToLower(token))
	if !ok {
		return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
	}
	return r, nil
}

func parseNumber(token string) (int64, bool) {
	v, err := strconv.ParseInt(token, 0, 64)
	return v, err == nil
}

// parseValue reads a number or the address of a label.
func (a *Assembler) parseValue(token string, lineNo int) (int64, error) {
	if v, ok := parseNumber(token); ok {
		return v, nil
	}
	if addr, ok := a.resolve(token); ok {
		return int64(addr), nil
	}
	if isIdentifier(token) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", token, lineNo)
	}
	return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

func (a *Assembler) parseImm12(token string, lineNo int) (int32, error) {
	v, err := a.parseValue(token, lineNo)
	if err != nil {
		return 0, err
	}
	if v < -2048 || v > 2047 {
		return 0, fmt.Errorf("immediate out of range on line %d: %s", lineNo, token)
	}
	return int32(v), nil
}

// parseMemory reads an "off(reg)" operand.
func (a *Assembler) parseMemory(token string, lineNo int) (int32, uint32, error) {
	open := strings.IndexByte(token, '(')
	if open < 0 || !strings.HasSuffix(token, ")") {
		return 0, 0, fmt.Errorf("invalid memory operand '%s' on line %d", token, lineNo)
	}
	base, err := parseRegister(strings.TrimSpace(token[open+1:len(token)-1]), lineNo)
	if err != nil {
		return 0, 0, err
	}
	var off int32
	if s := strings.TrimSpace(token[:open]); s != "" {
		if off, err = a.parseImm12(s, lineNo); err != nil {
			return 0, 0, err
		}
	}
	return off, base, nil
}

// parseStringLiteral decodes a double-quoted literal with C escapes,
// including octal (\000) and hex (\x41) bytes.
func parseStringLiteral(token string) ([]byte, error) {
	if len(token) < 2 || token[0] != '"' || token[len(token)-1] != '"' {
		return nil, fmt.Errorf("expected quoted string, got %s", token)
	}
	body := token[1 : len(token)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			if c == '"' {
				return nil, errors.New("unescaped quote")
			}
			out = append(out, c)
			continue
		}
		i++
		if i >= len(body) {
			return nil, errors.New("trailing backslash")
		}
		switch e := body[i]; e {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '\\', '"', '\'':
			out = append(out, e)
		case 'x':
			j := i + 1
			for j < len(body) && j < i+3 && isHexDigit(body[j]) {
				j++
			}
			if j == i+1 {
				return nil, errors.New(`\x without hex digits`)
			}
			v, _ := strconv.ParseUint(body[i+1:j], 16, 8)
			out = append(out, byte(v))
			i = j - 1
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(body) && j < i+3 && body[j] >= '0' && body[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(body[i:j], 8, 16)
			out = append(out, byte(v))
			i = j - 1
		default:
			return nil, fmt.Errorf("unknown escape \\%c", e)
		}
	}
	return out, nil
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
