package records

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormula is returned by ParseFormula for syntax outside the
// subset this package builds.
var ErrUnsupportedFormula = errors.New("unsupported filter formula")

// Eq builds an equality filter, e.g. {Sender ID}="acme_stripe".
func Eq(field, value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return fmt.Sprintf(`{%s}="%s"`, field, r.Replace(value))
}

// And joins filters with AND(...). Empty parts are skipped.
func And(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	switch len(nonEmpty) {
	case 0:
		return ""
	case 1:
		return nonEmpty[0]
	default:
		return "AND(" + strings.Join(nonEmpty, ", ") + ")"
	}
}

// Predicate reports whether a record's fields satisfy a filter.
type Predicate func(fields map[string]any) bool

// MatchAll accepts every record.
func MatchAll(map[string]any) bool { return true }

// ParseFormula parses the Eq/And subset into a Predicate. An empty formula
// matches everything.
func ParseFormula(formula string) (Predicate, error) {
	p := &formulaParser{src: strings.TrimSpace(formula)}
	if p.src == "" {
		return MatchAll, nil
	}
	pred, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing input")
	}
	return pred, nil
}

type formulaParser struct {
	src string
	pos int
}

func (p *formulaParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrUnsupportedFormula, p.pos, fmt.Sprintf(format, args...))
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *formulaParser) consume(s string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *formulaParser) expr() (Predicate, error) {
	p.skipSpace()
	if len(p.src)-p.pos >= 4 && strings.EqualFold(p.src[p.pos:p.pos+4], "AND(") {
		p.pos += 4
		return p.and()
	}
	return p.eq()
}

func (p *formulaParser) and() (Predicate, error) {
	var preds []Predicate
	for {
		pred, err := p.expr()
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
		if p.consume(",") {
			continue
		}
		if p.consume(")") {
			break
		}
		return nil, p.errorf("expected , or )")
	}
	return func(fields map[string]any) bool {
		for _, pred := range preds {
			if !pred(fields) {
				return false
			}
		}
		return true
	}, nil
}

func (p *formulaParser) eq() (Predicate, error) {
	if !p.consume("{") {
		return nil, p.errorf("expected {")
	}
	end := strings.IndexByte(p.src[p.pos:], '}')
	if end < 0 {
		return nil, p.errorf("unterminated field name")
	}
	field := p.src[p.pos : p.pos+end]
	p.pos += end + 1
	if !p.consume("=") {
		return nil, p.errorf("expected =")
	}
	value, err := p.quoted()
	if err != nil {
		return nil, err
	}
	return func(fields map[string]any) bool {
		return String(fields, field) == value
	}, nil
}

func (p *formulaParser) quoted() (string, error) {
	if !p.consume(`"`) {
		return "", p.errorf("expected quoted value")
	}
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.pos >= len(p.src) {
				return "", p.errorf("dangling escape")
			}
			b.WriteByte(p.src[p.pos])
			p.pos++
		case '"':
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}
