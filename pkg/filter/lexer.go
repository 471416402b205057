package filter

import (
	"fmt"
	"strings"
)

// TokenType 词法单元类型
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenQuotedIdent // "Col" 或 `col`
	TokenString      // 'value'
	TokenNumber      // 12, -1.5, 2e10
	TokenOperator    // = != <> < <= > >=
	TokenCast        // ::
	TokenLParen
	TokenRParen
	TokenComma
	TokenDot
	TokenLBracket
	TokenRBracket
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "end of input",
	TokenIdent:       "identifier",
	TokenQuotedIdent: "quoted identifier",
	TokenString:      "string",
	TokenNumber:      "number",
	TokenOperator:    "operator",
	TokenCast:        "'::'",
	TokenLParen:      "'('",
	TokenRParen:      "')'",
	TokenComma:       "','",
	TokenDot:         "'.'",
	TokenLBracket:    "'['",
	TokenRBracket:    "']'",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token 词法单元，Pos/End 为原文中的字节偏移
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
	End     int
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q", t.Type, t.Literal)
}

// isKeyword 大小写不敏感的关键字判断
func (t Token) isKeyword(kw string) bool {
	return t.Type == TokenIdent && strings.EqualFold(t.Literal, kw)
}

// reserved 不能作为未加引号标识符使用的关键字
var reserved = map[string]bool{
	"AND":    true,
	"OR":     true,
	"NOT":    true,
	"IN":     true,
	"IS":     true,
	"NULL":   true,
	"SELECT": true,
}

func isReserved(lit string) bool {
	return reserved[strings.ToUpper(lit)]
}

type lexer struct {
	input  string
	pos    int
	tokens []Token
}

// tokenize 将过滤条件切分为词法单元，末尾总是 TokenEOF
func tokenize(input string) ([]Token, error) {
	l := &lexer{input: input}
	for {
		l.skipSpaceAndComments()
		if l.pos >= len(l.input) {
			l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos, End: l.pos})
			return l.tokens, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.pos++
		case ch == '-' && l.peek(1) == '-':
			// -- 注释到行尾
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *lexer) emit(tt TokenType, lit string, start int) {
	l.tokens = append(l.tokens, Token{Type: tt, Literal: lit, Pos: start, End: l.pos})
}

func (l *lexer) next() error {
	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch == '(':
		l.pos++
		l.emit(TokenLParen, "(", start)
	case ch == ')':
		l.pos++
		l.emit(TokenRParen, ")", start)
	case ch == ',':
		l.pos++
		l.emit(TokenComma, ",", start)
	case ch == '[':
		l.pos++
		l.emit(TokenLBracket, "[", start)
	case ch == ']':
		l.pos++
		l.emit(TokenRBracket, "]", start)
	case ch == ':' && l.peek(1) == ':':
		l.pos += 2
		l.emit(TokenCast, "::", start)
	case ch == '=':
		l.pos++
		l.emit(TokenOperator, "=", start)
	case ch == '!' && l.peek(1) == '=':
		l.pos += 2
		l.emit(TokenOperator, "!=", start)
	case ch == '<' || ch == '>':
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '=' || (ch == '<' && l.input[l.pos] == '>')) {
			l.pos++
		}
		l.emit(TokenOperator, l.input[start:l.pos], start)
	case ch == '\'':
		s, err := l.readQuoted('\'')
		if err != nil {
			return err
		}
		l.emit(TokenString, s, start)
	case ch == '"' || ch == '`':
		s, err := l.readQuoted(ch)
		if err != nil {
			return err
		}
		l.emit(TokenQuotedIdent, s, start)
	case isDigit(ch) || (ch == '.' && isDigit(l.peek(1))):
		l.readNumber()
		l.emit(TokenNumber, l.input[start:l.pos], start)
	case (ch == '-' || ch == '+') && l.signStartsNumber():
		l.pos++
		l.readNumber()
		l.emit(TokenNumber, l.input[start:l.pos], start)
	case ch == '.':
		l.pos++
		l.emit(TokenDot, ".", start)
	case isIdentStart(ch):
		for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			l.pos++
		}
		l.emit(TokenIdent, l.input[start:l.pos], start)
	default:
		return &ParseError{
			Text:     l.input,
			Pos:      start,
			Found:    fmt.Sprintf("%q", string(ch)),
			Expected: "token",
		}
	}
	return nil
}

// signStartsNumber 正负号仅在值的位置上视为数字的一部分
func (l *lexer) signStartsNumber() bool {
	next := l.peek(1)
	if !isDigit(next) && !(next == '.' && isDigit(l.peek(2))) {
		return false
	}
	if len(l.tokens) == 0 {
		return true
	}
	switch l.tokens[len(l.tokens)-1].Type {
	case TokenIdent, TokenQuotedIdent, TokenString, TokenNumber, TokenRParen, TokenRBracket:
		return false
	}
	return true
}

func (l *lexer) readNumber() {
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
}

// readQuoted 读取引号包围的内容，连续两个引号表示转义
func (l *lexer) readQuoted(quote byte) (string, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			if l.peek(1) == quote {
				sb.WriteByte(quote)
				l.pos += 2
				continue
			}
			l.pos++
			return sb.String(), nil
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return "", &ParseError{
		Text:     l.input,
		Pos:      start,
		Found:    "end of input",
		Expected: fmt.Sprintf("closing %c", quote),
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentStart(ch byte) bool {
	return isLetter(ch) || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '$'
}
