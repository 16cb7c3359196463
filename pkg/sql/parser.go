package sql

import (
	"strconv"
	"strings"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/types"
)

// Parser é um descent recursivo sem fallback: o primeiro token decide a
// produção e qualquer desvio vira ParseError com posição.
type Parser struct {
	lex    *Lexer
	tok    Token // Lookahead de 1 token
	err    error
	params int // Contador de '?' vistos
}

// NewParser cria o parser e carrega o primeiro token.
func NewParser(src string) *Parser {
	p := &Parser{lex: NewLexer(src)}
	p.advance()
	return p
}

// Parse parseia exatamente um statement (ponto-e-vírgula final opcional).
func Parse(src string) (Statement, error) {
	p := NewParser(src)
	stmt, err := p.ParseStatement()
	if err != nil {
		return nil, err
	}
	if p.tok.Type == TokSemicolon {
		p.advance()
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.tok.Type != TokEOF {
		return nil, p.unexpected("end of statement")
	}
	return stmt, nil
}

// ParseWithParams parseia um statement e informa quantos placeholders '?'
// ele carrega (prepared statements).
func ParseWithParams(src string) (Statement, int, error) {
	p := NewParser(src)
	stmt, err := p.ParseStatement()
	if err != nil {
		return nil, 0, err
	}
	if p.tok.Type == TokSemicolon {
		p.advance()
	}
	if p.err != nil {
		return nil, 0, p.err
	}
	if p.tok.Type != TokEOF {
		return nil, 0, p.unexpected("end of statement")
	}
	return stmt, p.params, nil
}

// ParseScript parseia uma sequência de statements separados por ';'.
func ParseScript(src string) ([]Statement, error) {
	p := NewParser(src)
	var stmts []Statement
	for {
		for p.tok.Type == TokSemicolon {
			p.advance()
		}
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.Type == TokEOF {
			return stmts, nil
		}
		stmt, err := p.ParseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
}

// ParamCount retorna quantos placeholders '?' o statement usa.
func (p *Parser) ParamCount() int { return p.params }

func (p *Parser) advance() {
	if p.err != nil {
		return
	}
	tok, err := p.lex.Next()
	if err != nil {
		p.err = err
		p.tok = Token{Type: TokEOF, Pos: p.tok.Pos}
		return
	}
	p.tok = tok
}

func (p *Parser) unexpected(expected string) error {
	if p.err != nil {
		return p.err
	}
	actual := p.tok.Text
	if p.tok.Type == TokEOF {
		actual = "end of input"
	}
	return &errors.ParseError{Position: p.tok.Pos, Expected: expected, Actual: actual}
}

func (p *Parser) expectKeyword(kw string) error {
	if p.tok.Type != TokKeyword || p.tok.Text != kw {
		return p.unexpected(kw)
	}
	p.advance()
	return nil
}

func (p *Parser) acceptKeyword(kw string) bool {
	if p.tok.Type == TokKeyword && p.tok.Text == kw {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	if p.tok.Type != tt {
		return Token{}, p.unexpected(what)
	}
	tok := p.tok
	p.advance()
	return tok, nil
}

func (p *Parser) identifier(what string) (string, error) {
	if p.tok.Type != TokIdent {
		return "", p.unexpected(what)
	}
	name := p.tok.Text
	p.advance()
	return name, nil
}

// ParseStatement despacha pela keyword inicial.
func (p *Parser) ParseStatement() (Statement, error) {
	if p.tok.Type != TokKeyword {
		return nil, p.unexpected("a SQL statement")
	}

	switch p.tok.Text {
	case "CREATE":
		return p.parseCreate()
	case "DROP":
		return p.parseDrop()
	case "INSERT":
		return p.parseInsert()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "SELECT":
		return p.parseSelect()
	case "BEGIN":
		p.advance()
		p.acceptKeyword("TRANSACTION")
		return &BeginStmt{}, nil
	case "START":
		p.advance()
		if err := p.expectKeyword("TRANSACTION"); err != nil {
			return nil, err
		}
		return &BeginStmt{}, nil
	case "COMMIT":
		p.advance()
		return &CommitStmt{}, nil
	case "ROLLBACK":
		p.advance()
		return &RollbackStmt{}, nil
	case "COPY":
		return p.parseCopy()
	case "JOIN", "GROUP":
		return nil, &errors.FeatureUnsupportedError{Feature: p.tok.Text}
	}
	return nil, p.unexpected("a SQL statement")
}

func (p *Parser) parseCreate() (Statement, error) {
	p.advance() // CREATE

	unique := p.acceptKeyword("UNIQUE")

	switch {
	case p.tok.Type == TokKeyword && p.tok.Text == "TABLE":
		if unique {
			return nil, p.unexpected("INDEX after UNIQUE")
		}
		return p.parseCreateTable()
	case p.tok.Type == TokKeyword && p.tok.Text == "INDEX":
		return p.parseCreateIndex(unique)
	case p.tok.Type == TokKeyword && p.tok.Text == "EXTENSION":
		if unique {
			return nil, p.unexpected("INDEX after UNIQUE")
		}
		return p.parseCreateExtension()
	}
	return nil, p.unexpected("TABLE, INDEX or EXTENSION")
}

func (p *Parser) parseCreateTable() (Statement, error) {
	p.advance() // TABLE
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}

	stmt := &CreateTableStmt{Table: table}
	for {
		// Constraint de tabela: PRIMARY KEY (a, b, ...)
		if p.tok.Type == TokKeyword && p.tok.Text == "PRIMARY" {
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			if _, err := p.expect(TokLParen, "("); err != nil {
				return nil, err
			}
			for {
				col, err := p.identifier("primary key column")
				if err != nil {
					return nil, err
				}
				stmt.PKColumns = append(stmt.PKColumns, col)
				if p.tok.Type == TokComma {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
		} else {
			def, err := p.parseColumnDef()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, *def)
		}

		if p.tok.Type == TokComma {
			p.advance()
			continue
		}
		break
	}

	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseColumnDef() (*ColumnDef, error) {
	name, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}

	def := &ColumnDef{Name: name}

	if p.tok.Type != TokKeyword {
		return nil, p.unexpected("a column type")
	}
	switch p.tok.Text {
	case "INTEGER":
		def.Type = types.TypeInteger
		p.advance()
	case "REAL":
		def.Type = types.TypeReal
		p.advance()
	case "TEXT":
		def.Type = types.TypeText
		p.advance()
		w, err := p.parseWidth("TEXT")
		if err != nil {
			return nil, err
		}
		def.Width = w
	case "VECTOR":
		def.Type = types.TypeVector
		p.advance()
		w, err := p.parseWidth("VECTOR")
		if err != nil {
			return nil, err
		}
		def.Width = w
	default:
		return nil, p.unexpected("a column type")
	}

	// Modificadores em qualquer ordem
	for p.tok.Type == TokKeyword {
		switch p.tok.Text {
		case "PRIMARY":
			p.advance()
			if err := p.expectKeyword("KEY"); err != nil {
				return nil, err
			}
			def.PrimaryKey = true
		case "NOT":
			p.advance()
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			def.NotNull = true
		case "UNIQUE":
			p.advance()
			def.Unique = true
		default:
			return def, nil
		}
	}
	return def, nil
}

// parseWidth lê a largura obrigatória de TEXT(n)/VECTOR(d).
func (p *Parser) parseWidth(what string) (int, error) {
	if _, err := p.expect(TokLParen, what+" width declaration"); err != nil {
		return 0, err
	}
	numTok, err := p.expect(TokNumber, what+" width")
	if err != nil {
		return 0, err
	}
	w, convErr := strconv.Atoi(numTok.Text)
	if convErr != nil || w <= 0 {
		return 0, &errors.ParseError{Position: numTok.Pos, Expected: "a positive " + what + " width", Actual: numTok.Text}
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return 0, err
	}
	return w, nil
}

func (p *Parser) parseCreateIndex(unique bool) (Statement, error) {
	p.advance() // INDEX
	name, err := p.identifier("index name")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	column, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}

	using := "BTREE"
	if p.acceptKeyword("USING") {
		if p.tok.Type != TokIdent && p.tok.Type != TokKeyword {
			return nil, p.unexpected("index kind")
		}
		using = strings.ToUpper(p.tok.Text)
		p.advance()
	}

	return &CreateIndexStmt{Name: name, Table: table, Column: column, Using: using, Unique: unique}, nil
}

func (p *Parser) parseCreateExtension() (Statement, error) {
	p.advance() // EXTENSION
	name, err := p.identifier("extension name")
	if err != nil {
		return nil, err
	}
	stmt := &CreateExtensionStmt{Name: name}
	if p.acceptKeyword("WITH") {
		if err := p.expectKeyword("PATH"); err != nil {
			return nil, err
		}
		pathTok, err := p.expect(TokString, "extension path string")
		if err != nil {
			return nil, err
		}
		stmt.Path = pathTok.Text
	}
	return stmt, nil
}

func (p *Parser) parseDrop() (Statement, error) {
	p.advance() // DROP
	if p.tok.Type != TokKeyword {
		return nil, p.unexpected("TABLE, INDEX or EXTENSION")
	}
	switch p.tok.Text {
	case "TABLE":
		p.advance()
		table, err := p.identifier("table name")
		if err != nil {
			return nil, err
		}
		return &DropTableStmt{Table: table}, nil
	case "INDEX":
		p.advance()
		name, err := p.identifier("index name")
		if err != nil {
			return nil, err
		}
		stmt := &DropIndexStmt{Name: name}
		if p.acceptKeyword("ON") {
			table, err := p.identifier("table name")
			if err != nil {
				return nil, err
			}
			stmt.Table = table
		}
		return stmt, nil
	case "EXTENSION":
		p.advance()
		name, err := p.identifier("extension name")
		if err != nil {
			return nil, err
		}
		return &DropExtensionStmt{Name: name}, nil
	}
	return nil, p.unexpected("TABLE, INDEX or EXTENSION")
}

func (p *Parser) parseInsert() (Statement, error) {
	p.advance() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}

	stmt := &InsertStmt{Table: table}

	if p.tok.Type == TokLParen {
		p.advance()
		for {
			col, err := p.identifier("column name")
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
			if p.tok.Type == TokComma {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}

	for {
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		var row []Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.tok.Type == TokComma {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)

		if p.tok.Type == TokComma {
			p.advance()
			continue
		}
		break
	}
	return stmt, nil
}

func (p *Parser) parseUpdate() (Statement, error) {
	p.advance() // UPDATE
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}

	stmt := &UpdateStmt{Table: table}
	for {
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokEq, "="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{Column: col, Value: val})
		if p.tok.Type == TokComma {
			p.advance()
			continue
		}
		break
	}

	if p.acceptKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (Statement, error) {
	p.advance() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStmt{Table: table}
	if p.acceptKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseSelect() (Statement, error) {
	p.advance() // SELECT

	stmt := &SelectStmt{}
	for {
		if p.tok.Type == TokStar {
			p.advance()
			stmt.Items = append(stmt.Items, SelectItem{Star: true})
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := SelectItem{Expr: e}
			if p.acceptKeyword("AS") {
				alias, err := p.identifier("alias")
				if err != nil {
					return nil, err
				}
				item.Alias = alias
			}
			stmt.Items = append(stmt.Items, item)
		}
		if p.tok.Type == TokComma {
			p.advance()
			continue
		}
		break
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt.Table = table

	if p.tok.Type == TokKeyword && p.tok.Text == "JOIN" {
		return nil, &errors.FeatureUnsupportedError{Feature: "JOIN"}
	}

	if p.acceptKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.tok.Type == TokKeyword && p.tok.Text == "GROUP" {
		return nil, &errors.FeatureUnsupportedError{Feature: "GROUP BY"}
	}

	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			col, err := p.identifier("order column")
			if err != nil {
				return nil, err
			}
			key := OrderKey{Column: col}
			if p.acceptKeyword("DESC") {
				key.Desc = true
			} else {
				p.acceptKeyword("ASC")
			}
			stmt.OrderBy = append(stmt.OrderBy, key)
			if p.tok.Type == TokComma {
				p.advance()
				continue
			}
			break
		}
	}

	if p.acceptKeyword("LIMIT") {
		limit, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		stmt.Limit = limit
	}

	return stmt, nil
}

func (p *Parser) parseCopy() (Statement, error) {
	p.advance() // COPY
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	pathTok, err := p.expect(TokString, "source path string")
	if err != nil {
		return nil, err
	}
	return &CopyStmt{Table: table, Path: pathTok.Text}, nil
}

// === Expressões (precedência: OR < AND < comparação < aditivo < multiplicativo < unário) ===

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.Type == TokKeyword && p.tok.Text == "OR" {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.tok.Type == TokKeyword && p.tok.Text == "AND" {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	var op BinaryOp
	switch {
	case p.tok.Type == TokEq:
		op = OpEq
	case p.tok.Type == TokNotEq:
		op = OpNotEq
	case p.tok.Type == TokLt:
		op = OpLt
	case p.tok.Type == TokLtEq:
		op = OpLtEq
	case p.tok.Type == TokGt:
		op = OpGt
	case p.tok.Type == TokGtEq:
		op = OpGtEq
	case p.tok.Type == TokKeyword && p.tok.Text == "LIKE":
		op = OpLike
	default:
		return left, nil
	}
	p.advance()

	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.Type == TokPlus || p.tok.Type == TokMinus {
		op := OpAdd
		if p.tok.Type == TokMinus {
			op = OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.Type == TokStar || p.tok.Type == TokSlash {
		op := OpMul
		if p.tok.Type == TokSlash {
			op = OpDiv
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.tok.Type == TokMinus {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Neg: true, Expr: inner}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.tok.Type {
	case TokNumber:
		text := p.tok.Text
		pos := p.tok.Pos
		p.advance()
		if strings.ContainsAny(text, ".eE") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &errors.ParseError{Position: pos, Expected: "a number", Actual: text}
			}
			return &Literal{Value: types.NewReal(f)}, nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, &errors.ParseError{Position: pos, Expected: "an integer", Actual: text}
		}
		return &Literal{Value: types.NewInteger(n)}, nil

	case TokString:
		text := p.tok.Text
		p.advance()
		return &Literal{Value: types.NewText(text)}, nil

	case TokParam:
		p.advance()
		idx := p.params
		p.params++
		return &Param{Index: idx}, nil

	case TokLBracket:
		// Literal de vetor: [1.0, 2.0, ...]
		p.advance()
		var vec []float64
		for p.tok.Type != TokRBracket {
			neg := false
			if p.tok.Type == TokMinus {
				neg = true
				p.advance()
			}
			numTok, err := p.expect(TokNumber, "vector element")
			if err != nil {
				return nil, err
			}
			f, convErr := strconv.ParseFloat(numTok.Text, 64)
			if convErr != nil {
				return nil, &errors.ParseError{Position: numTok.Pos, Expected: "a number", Actual: numTok.Text}
			}
			if neg {
				f = -f
			}
			vec = append(vec, f)
			if p.tok.Type == TokComma {
				p.advance()
			}
		}
		p.advance() // ]
		return &Literal{Value: types.NewVector(vec)}, nil

	case TokKeyword:
		if p.tok.Text == "NULL" {
			p.advance()
			return &Literal{Value: types.NewNull()}, nil
		}
		return nil, p.unexpected("an expression")

	case TokIdent:
		name := p.tok.Text
		p.advance()
		if p.tok.Type == TokLParen {
			// Chamada de função
			p.advance()
			call := &FuncCall{Name: strings.ToUpper(name)}
			if p.tok.Type == TokStar {
				p.advance()
				call.Star = true
			} else if p.tok.Type != TokRParen {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					call.Args = append(call.Args, arg)
					if p.tok.Type == TokComma {
						p.advance()
						continue
					}
					break
				}
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
			return call, nil
		}
		return &ColumnRef{Name: name}, nil

	case TokLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	return nil, p.unexpected("an expression")
}
