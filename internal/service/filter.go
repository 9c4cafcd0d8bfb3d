package service

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/wellnesslog/internal/db"
	"gorm.io/gorm"
)

// 过滤条件操作符到 SQL 的固定映射，查询中不会出现其他操作符
var filterOperators = map[string]string{
	"eq":  "=",
	"ne":  "<>",
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
	"in":  "IN",
}

// normalizeFilters 校验字段与操作符是否在数据源登记范围内
func normalizeFilters(source db.TrackingSource, filters []db.FilterClause) ([]db.FilterClause, error) {
	out := make([]db.FilterClause, 0, len(filters))
	for i, f := range filters {
		field := strings.TrimSpace(strings.ToLower(f.Field))
		op := strings.TrimSpace(strings.ToLower(f.Op))
		if op == "" {
			op = "eq"
		}

		if !source.HasColumn(field) {
			return nil, fmt.Errorf("filter %d: unknown column %q on %s", i, f.Field, source.Table)
		}
		if _, ok := filterOperators[op]; !ok {
			return nil, fmt.Errorf("filter %d: unsupported operator %q", i, f.Op)
		}

		switch v := f.Value.(type) {
		case []any:
			if op != "in" || len(v) == 0 {
				return nil, fmt.Errorf("filter %d: list value requires non-empty in", i)
			}
			for _, item := range v {
				if !isScalar(item) {
					return nil, fmt.Errorf("filter %d: unsupported list item %T", i, item)
				}
			}
		default:
			if op == "in" {
				return nil, fmt.Errorf("filter %d: in requires a list value", i)
			}
			if !isScalar(v) {
				return nil, fmt.Errorf("filter %d: unsupported value %T", i, v)
			}
		}

		out = append(out, db.FilterClause{Field: field, Op: op, Value: f.Value})
	}
	return out, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, uint, float32, float64:
		return true
	default:
		return false
	}
}

// applyFilters 把已校验的过滤条件追加到查询，值全部以参数绑定
func applyFilters(query *gorm.DB, filters []db.FilterClause) *gorm.DB {
	for _, f := range filters {
		sqlOp := filterOperators[f.Op]
		query = query.Where(fmt.Sprintf("%s %s ?", quoteIdent(f.Field), sqlOp), f.Value)
	}
	return query
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// ParseLegacyFilter 把历史上以字符串保存的过滤片段转换为结构化条件。
// 仅支持 `field op literal` 用 AND 连接，以及 `field IN (literal, ...)`；
// literal 为单引号字符串或数字。其他写法一律拒绝。
func ParseLegacyFilter(expr string) ([]db.FilterClause, error) {
	tokens, err := tokenizeFilter(expr)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	p := &filterParser{tokens: tokens}
	var clauses []db.FilterClause
	for {
		clause, err := p.clause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)

		if p.done() {
			return clauses, nil
		}
		tok := p.next()
		if tok.kind != tokenIdent || !strings.EqualFold(tok.text, "and") {
			return nil, fmt.Errorf("legacy filter: expected AND, got %q", tok.text)
		}
	}
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenNumber
	tokenOperator
	tokenPunct
)

type filterToken struct {
	kind tokenKind
	text string
}

var legacyOperators = map[string]string{
	"=":  "eq",
	"!=": "ne",
	"<>": "ne",
	">":  "gt",
	">=": "gte",
	"<":  "lt",
	"<=": "lte",
}

func tokenizeFilter(expr string) ([]filterToken, error) {
	var tokens []filterToken
	runes := []rune(expr)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')' || r == ',':
			tokens = append(tokens, filterToken{kind: tokenPunct, text: string(r)})
			i++
		case r == '\'':
			var sb strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						sb.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("legacy filter: unterminated string")
			}
			tokens = append(tokens, filterToken{kind: tokenString, text: sb.String()})
		case r == '=' || r == '!' || r == '<' || r == '>':
			op := string(r)
			if i+1 < len(runes) && (runes[i+1] == '=' || (r == '<' && runes[i+1] == '>')) {
				op += string(runes[i+1])
			}
			if _, ok := legacyOperators[op]; !ok {
				return nil, fmt.Errorf("legacy filter: unsupported operator %q", op)
			}
			tokens = append(tokens, filterToken{kind: tokenOperator, text: op})
			i += len([]rune(op))
		case unicode.IsDigit(r) || r == '-' || r == '.':
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, filterToken{kind: tokenNumber, text: string(runes[start:i])})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			tokens = append(tokens, filterToken{kind: tokenIdent, text: string(runes[start:i])})
		default:
			return nil, fmt.Errorf("legacy filter: unexpected character %q", r)
		}
	}
	return tokens, nil
}

type filterParser struct {
	tokens []filterToken
	pos    int
}

func (p *filterParser) done() bool { return p.pos >= len(p.tokens) }

func (p *filterParser) next() filterToken {
	if p.done() {
		return filterToken{kind: tokenPunct, text: "<end>"}
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

func (p *filterParser) clause() (db.FilterClause, error) {
	field := p.next()
	if field.kind != tokenIdent || strings.EqualFold(field.text, "and") {
		return db.FilterClause{}, fmt.Errorf("legacy filter: expected column, got %q", field.text)
	}

	op := p.next()
	if op.kind == tokenIdent && strings.EqualFold(op.text, "in") {
		values, err := p.list()
		if err != nil {
			return db.FilterClause{}, err
		}
		return db.FilterClause{Field: strings.ToLower(field.text), Op: "in", Value: values}, nil
	}
	if op.kind != tokenOperator {
		return db.FilterClause{}, fmt.Errorf("legacy filter: expected operator after %s, got %q", field.text, op.text)
	}

	value, err := p.literal()
	if err != nil {
		return db.FilterClause{}, err
	}
	return db.FilterClause{Field: strings.ToLower(field.text), Op: legacyOperators[op.text], Value: value}, nil
}

func (p *filterParser) list() ([]any, error) {
	if tok := p.next(); tok.text != "(" {
		return nil, fmt.Errorf("legacy filter: expected ( after IN")
	}
	var values []any
	for {
		value, err := p.literal()
		if err != nil {
			return nil, err
		}
		values = append(values, value)

		tok := p.next()
		switch tok.text {
		case ",":
			continue
		case ")":
			return values, nil
		default:
			return nil, fmt.Errorf("legacy filter: expected , or ) in list, got %q", tok.text)
		}
	}
}

func (p *filterParser) literal() (any, error) {
	tok := p.next()
	switch tok.kind {
	case tokenString:
		return tok.text, nil
	case tokenNumber:
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("legacy filter: invalid number %q", tok.text)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("legacy filter: expected literal, got %q", tok.text)
	}
}
