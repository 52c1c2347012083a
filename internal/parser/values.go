package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayouts lists the accepted textual date formats, tried in order.
var DateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"20060102",
}

// ParseDate parses a statement date in any of DateLayouts. The result is
// midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// BlankDescription stands in for an entry whose statement line has no text.
const BlankDescription = "SEM DESCRICAO"

// Description collapses whitespace in s. A blank description falls back to
// the type hint, then to BlankDescription.
func Description(s, typeHint string) string {
	if d := strings.Join(strings.Fields(s), " "); d != "" {
		return d
	}
	if h := strings.TrimSpace(typeHint); h != "" {
		return strings.ToUpper(h)
	}
	return BlankDescription
}

// ParseAmount parses a decimal amount written with either separator
// convention: "1234.56", "-1.234,56", "1,234.56", "R$ 10,00", "(5,00)".
//
// When both separators appear, the last one is the decimal separator. When
// only one kind appears it is a thousands separator if repeated, otherwise
// the decimal separator. A lone separator followed by exactly three digits,
// as in "1.234", reads either way and is rejected.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = !negative
		s = s[:len(s)-1]
	}

	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return 0, fmt.Errorf("unexpected character %q", r)
		}
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if ambiguousSeparator(s, lastComma) {
			return 0, fmt.Errorf("ambiguous separator in %q", s)
		}
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if ambiguousSeparator(s, lastDot) {
			return 0, fmt.Errorf("ambiguous separator in %q", s)
		}
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if negative {
		v = -v
	}
	return v, nil
}

// ambiguousSeparator reports a single separator at i with exactly three
// digits after it and a non-zero integer part.
func ambiguousSeparator(s string, i int) bool {
	return i > 0 && s[:i] != "0" && strings.Count(s, s[i:i+1]) == 1 && len(s)-i-1 == 3
}
