package filter

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// 支持的语法（关键字大小写不敏感）：
//
//	expr      := or
//	or        := and { OR and }
//	and       := not { AND not }
//	not       := NOT not | primary
//	primary   := '(' expr ')' | condition
//	condition := lhs op value
//	           | column IN '(' value { ',' value } ')'
//	           | column IN '(' SELECT ... ')'
//	           | column IS [NOT] NULL
//	lhs       := column [ '::' type ] | '(' column ')' '::' type
//	value     := (string | number | column) [ '::' type ]

// Parser 过滤条件解析器
type Parser struct {
	text   string
	tokens []Token
	pos    int
	upper  cases.Caser
}

// Parse 解析过滤条件文本
func Parse(text string) (Expr, error) {
	return NewParser().Parse(text)
}

// NewParser 创建解析器；解析器不可并发使用
func NewParser() *Parser {
	return &Parser{upper: cases.Upper(language.Und)}
}

// Parse 解析过滤条件文本为表达式树
func (p *Parser) Parse(text string) (Expr, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	p.text = text
	p.tokens = tokens
	p.pos = 0

	if p.cur().Type == TokenEOF {
		return nil, p.errorf("expression")
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur().Type != TokenEOF {
		return nil, p.errorf("AND, OR or end of input")
	}
	return expr, nil
}

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) errorf(expected string) *ParseError {
	tok := p.cur()
	return &ParseError{
		Text:     p.text,
		Pos:      tok.Pos,
		Found:    tok.String(),
		Expected: expected,
	}
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	if p.cur().Type != tt {
		return Token{}, p.errorf(tt.String())
	}
	return p.advance(), nil
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().isKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur().isKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.cur().isKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	if p.cur().Type == TokenLParen {
		if p.castColumnAhead() {
			p.advance()
			column, err := p.parseColumnName()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRParen); err != nil {
				return nil, err
			}
			if err := p.parseCast(); err != nil {
				return nil, err
			}
			return p.parseConditionTail(column)
		}
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return p.parseCondition()
}

// castColumnAhead 判断是否为 '(' column ')' '::' 形式的左值
func (p *Parser) castColumnAhead() bool {
	i := 1
	if !isNameToken(p.peekAt(i)) {
		return false
	}
	i++
	for p.peekAt(i).Type == TokenDot && isNameToken(p.peekAt(i+1)) {
		i += 2
	}
	return p.peekAt(i).Type == TokenRParen && p.peekAt(i+1).Type == TokenCast
}

func isNameToken(tok Token) bool {
	return tok.Type == TokenQuotedIdent || (tok.Type == TokenIdent && !isReserved(tok.Literal))
}

func (p *Parser) parseCondition() (Expr, error) {
	column, err := p.parseColumnName()
	if err != nil {
		return nil, err
	}
	if p.cur().Type == TokenCast {
		if err := p.parseCast(); err != nil {
			return nil, err
		}
	}
	return p.parseConditionTail(column)
}

func (p *Parser) parseConditionTail(column string) (Expr, error) {
	tok := p.cur()
	switch {
	case tok.isKeyword("IN"):
		p.advance()
		return p.parseIn(column)
	case tok.isKeyword("IS"):
		p.advance()
		not := false
		if p.cur().isKeyword("NOT") {
			p.advance()
			not = true
		}
		if !p.cur().isKeyword("NULL") {
			return nil, p.errorf("NULL")
		}
		p.advance()
		return &IsNullExpr{Column: column, Not: not}, nil
	}

	op, ok := p.compareOp(tok)
	if !ok {
		return nil, p.errorf("comparison operator, IN or IS")
	}
	p.advance()
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &Comparison{Column: column, Op: op, Value: value}, nil
}

func (p *Parser) compareOp(tok Token) (CompareOp, bool) {
	switch tok.Type {
	case TokenOperator:
		op, ok := compareOps[tok.Literal]
		return op, ok
	case TokenIdent:
		op, ok := compareOps[strings.ToUpper(tok.Literal)]
		return op, ok
	}
	return "", false
}

func (p *Parser) parseIn(column string) (Expr, error) {
	open, err := p.expect(TokenLParen)
	if err != nil {
		return nil, err
	}

	if p.cur().isKeyword("SELECT") {
		depth := 1
		for {
			tok := p.cur()
			switch tok.Type {
			case TokenEOF:
				return nil, p.errorf("')'")
			case TokenLParen:
				depth++
			case TokenRParen:
				depth--
			}
			if depth == 0 {
				sub := strings.TrimSpace(p.text[open.End:tok.Pos])
				p.advance()
				return &InExpr{Column: column, Subquery: sub}, nil
			}
			p.advance()
		}
	}

	var values []Operand
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.cur().Type != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &InExpr{Column: column, Values: values}, nil
}

func (p *Parser) parseValue() (Operand, error) {
	var value Operand
	tok := p.cur()
	switch {
	case tok.Type == TokenString:
		p.advance()
		value = Operand{Kind: OperandString, Text: tok.Literal}
	case tok.Type == TokenNumber:
		p.advance()
		value = Operand{Kind: OperandNumber, Text: tok.Literal}
	case isNameToken(tok):
		column, err := p.parseColumnName()
		if err != nil {
			return Operand{}, err
		}
		value = Operand{Kind: OperandColumn, Text: column}
	default:
		return Operand{}, p.errorf("string, number or column")
	}

	if p.cur().Type == TokenCast {
		if err := p.parseCast(); err != nil {
			return Operand{}, err
		}
	}
	return value, nil
}

// parseColumnName 解析 ident(.ident)*，统一转换为大写
func (p *Parser) parseColumnName() (string, error) {
	if !isNameToken(p.cur()) {
		return "", p.errorf("column name")
	}
	parts := []string{p.upper.String(p.advance().Literal)}
	for p.cur().Type == TokenDot {
		p.advance()
		if !isNameToken(p.cur()) {
			return "", p.errorf("column name")
		}
		parts = append(parts, p.upper.String(p.advance().Literal))
	}
	return strings.Join(parts, "."), nil
}

// 多词类型名：首词 -> 可接续的词序列
var multiWordTypes = map[string][][]string{
	"CHARACTER": {{"VARYING"}},
	"DOUBLE":    {{"PRECISION"}},
	"TIMESTAMP": {{"WITHOUT", "TIME", "ZONE"}, {"WITH", "TIME", "ZONE"}},
	"TIME":      {{"WITHOUT", "TIME", "ZONE"}, {"WITH", "TIME", "ZONE"}},
}

// parseCast 解析并丢弃 '::' type 后缀
func (p *Parser) parseCast() error {
	if _, err := p.expect(TokenCast); err != nil {
		return err
	}
	tok := p.cur()
	if tok.Type != TokenIdent {
		return p.errorf("type name")
	}
	p.advance()

	for _, tail := range multiWordTypes[strings.ToUpper(tok.Literal)] {
		if p.matchWords(tail) {
			break
		}
	}

	if p.cur().Type == TokenLParen {
		p.advance()
		for {
			if _, err := p.expect(TokenNumber); err != nil {
				return err
			}
			if p.cur().Type != TokenComma {
				break
			}
			p.advance()
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return err
		}
	}
	for p.cur().Type == TokenLBracket {
		p.advance()
		if _, err := p.expect(TokenRBracket); err != nil {
			return err
		}
	}
	// 链式转换 'x'::text::date
	if p.cur().Type == TokenCast {
		return p.parseCast()
	}
	return nil
}

func (p *Parser) matchWords(words []string) bool {
	for i, w := range words {
		if !p.peekAt(i).isKeyword(w) {
			return false
		}
	}
	p.pos += len(words)
	return true
}
