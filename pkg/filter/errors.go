package filter

import "fmt"

// ParseError 过滤条件不符合语法
// 可恢复：调用方应退化为“没有已知谓词”，而不是中止
type ParseError struct {
	Text     string // 原始过滤条件
	Pos      int    // 出错的字节偏移
	Found    string // 实际遇到的内容
	Expected string // 解析器当时期望的内容
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse filter %q: expected %s at position %d, found %s", e.Text, e.Expected, e.Pos, e.Found)
}
