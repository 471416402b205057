package workload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// restoreFlags 还原 WHERE 文本：单引号字符串、不加反引号、运算符两侧留空格
const restoreFlags = format.RestoreStringSingleQuotes |
	format.RestoreKeyWordUppercase |
	format.RestoreSpacesAroundBinaryOperation |
	format.RestoreStringWithoutCharset

// SQLInfo 从查询文本中提取的信息
type SQLInfo struct {
	Tables  []string // 涉及的表名（小写，去重）
	Columns []string // 引用的列（小写，带限定名时为 table.column，去重）
	Where   string   // WHERE 条件文本，没有时为空
}

// Extractor 封装 TiDB parser，非并发安全
type Extractor struct {
	parser *parser.Parser
}

// NewExtractor 创建提取器
func NewExtractor() *Extractor {
	return &Extractor{parser: parser.New()}
}

// Extract 解析单条查询并提取表、列与 WHERE 条件
func (e *Extractor) Extract(sql string) (*SQLInfo, error) {
	stmt, err := e.parser.ParseOneStmt(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("解析 SQL 失败: %w", err)
	}

	v := newColumnVisitor()
	stmt.Accept(v)

	info := &SQLInfo{
		Tables:  v.tables.sorted(),
		Columns: v.columns.sorted(),
	}

	if where := whereOf(stmt); where != nil {
		var sb strings.Builder
		if err := where.Restore(format.NewRestoreCtx(restoreFlags, &sb)); err != nil {
			return nil, fmt.Errorf("还原 WHERE 条件失败: %w", err)
		}
		info.Where = sb.String()
	}
	return info, nil
}

func whereOf(stmt ast.StmtNode) ast.ExprNode {
	switch s := stmt.(type) {
	case *ast.SelectStmt:
		return s.Where
	case *ast.UpdateStmt:
		return s.Where
	case *ast.DeleteStmt:
		return s.Where
	}
	return nil
}

type stringSet map[string]struct{}

func (s stringSet) add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// columnVisitor 收集表名与列名
type columnVisitor struct {
	tables  stringSet
	columns stringSet
}

func newColumnVisitor() *columnVisitor {
	return &columnVisitor{tables: stringSet{}, columns: stringSet{}}
}

func (v *columnVisitor) Enter(n ast.Node) (ast.Node, bool) {
	switch node := n.(type) {
	case *ast.TableName:
		v.tables.add(node.Name.L)
	case *ast.ColumnName:
		if node.Name.L == "" {
			break
		}
		if node.Table.L != "" {
			v.columns.add(node.Table.L + "." + node.Name.L)
		} else {
			v.columns.add(node.Name.L)
		}
	}
	return n, false
}

func (v *columnVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}
