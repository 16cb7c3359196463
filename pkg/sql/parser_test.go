package sql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/types"
)

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT(16) NOT NULL, email TEXT(32) UNIQUE, score REAL)")
	require.NoError(t, err)

	ct, ok := stmt.(*CreateTableStmt)
	require.True(t, ok)
	require.Equal(t, "users", ct.Table)
	require.Len(t, ct.Columns, 4)

	require.Equal(t, "id", ct.Columns[0].Name)
	require.Equal(t, types.TypeInteger, ct.Columns[0].Type)
	require.True(t, ct.Columns[0].PrimaryKey)

	require.Equal(t, types.TypeText, ct.Columns[1].Type)
	require.Equal(t, 16, ct.Columns[1].Width)
	require.True(t, ct.Columns[1].NotNull)

	require.True(t, ct.Columns[2].Unique)
	require.Equal(t, types.TypeReal, ct.Columns[3].Type)
}

func TestParseCompositePrimaryKeyPreservesOrder(t *testing.T) {
	stmt, err := Parse("CREATE TABLE k (a INTEGER, b INTEGER, c INTEGER, PRIMARY KEY(b, a))")
	require.NoError(t, err)

	ct := stmt.(*CreateTableStmt)
	require.Equal(t, []string{"b", "a"}, ct.PKColumns)
}

func TestParseTextRequiresWidth(t *testing.T) {
	_, err := Parse("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")
	require.Error(t, err)
	var pe *errors.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseVectorColumn(t *testing.T) {
	stmt, err := Parse("CREATE TABLE docs (id INTEGER PRIMARY KEY, emb VECTOR(128))")
	require.NoError(t, err)
	ct := stmt.(*CreateTableStmt)
	require.Equal(t, types.TypeVector, ct.Columns[1].Type)
	require.Equal(t, 128, ct.Columns[1].Width)
}

func TestParseInsertMultiRow(t *testing.T) {
	stmt, err := Parse("INSERT INTO users VALUES (1, 'Alice'), (2, 'Bob')")
	require.NoError(t, err)

	ins := stmt.(*InsertStmt)
	require.Equal(t, "users", ins.Table)
	require.Len(t, ins.Rows, 2)
	require.Len(t, ins.Rows[0], 2)

	lit := ins.Rows[0][1].(*Literal)
	require.Equal(t, "Alice", lit.Value.Text)
}

func TestParseInsertWithColumnList(t *testing.T) {
	stmt, err := Parse("INSERT INTO t (b, a) VALUES (1, 2)")
	require.NoError(t, err)
	ins := stmt.(*InsertStmt)
	require.Equal(t, []string{"b", "a"}, ins.Columns)
}

func TestParseSelect(t *testing.T) {
	stmt, err := Parse("SELECT name, score FROM users WHERE id = 2 AND score > 1.5 ORDER BY score DESC, name LIMIT 10")
	require.NoError(t, err)

	sel := stmt.(*SelectStmt)
	require.Equal(t, "users", sel.Table)
	require.Len(t, sel.Items, 2)
	require.NotNil(t, sel.Where)
	require.Len(t, sel.OrderBy, 2)
	require.True(t, sel.OrderBy[0].Desc)
	require.False(t, sel.OrderBy[1].Desc)
	require.NotNil(t, sel.Limit)

	and := sel.Where.(*Binary)
	require.Equal(t, OpAnd, and.Op)
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Len(t, sel.Items, 1)
	require.True(t, sel.Items[0].Star)
}

func TestParseStringEscapes(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE name = 'O''Brien'")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	eq := sel.Where.(*Binary)
	require.Equal(t, "O'Brien", eq.Right.(*Literal).Value.Text)
}

func TestParseLikeAndOperators(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE name LIKE 'A%' OR (x <> 3 AND y <= 4)")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	or := sel.Where.(*Binary)
	require.Equal(t, OpOr, or.Op)
	require.Equal(t, OpLike, or.Left.(*Binary).Op)
}

func TestParseVectorLiteralAndFunctions(t *testing.T) {
	stmt, err := Parse("SELECT COSINE_SIMILARITY(emb, [1.0, -2.5, 3]) FROM docs")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	call := sel.Items[0].Expr.(*FuncCall)
	require.Equal(t, "COSINE_SIMILARITY", call.Name)
	require.Len(t, call.Args, 2)
	vec := call.Args[1].(*Literal)
	require.Equal(t, []float64{1.0, -2.5, 3}, vec.Value.Vec)
}

func TestParseParams(t *testing.T) {
	stmt, n, err := ParseWithParams("SELECT * FROM t WHERE a = ? AND b = ?")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	sel := stmt.(*SelectStmt)
	and := sel.Where.(*Binary)
	require.Equal(t, 0, and.Left.(*Binary).Right.(*Param).Index)
	require.Equal(t, 1, and.Right.(*Binary).Right.(*Param).Index)
}

func TestParseTransactionStatements(t *testing.T) {
	for _, src := range []string{"BEGIN", "BEGIN TRANSACTION", "START TRANSACTION"} {
		stmt, err := Parse(src)
		require.NoError(t, err, src)
		require.IsType(t, &BeginStmt{}, stmt)
	}

	stmt, err := Parse("COMMIT")
	require.NoError(t, err)
	require.IsType(t, &CommitStmt{}, stmt)

	stmt, err = Parse("ROLLBACK")
	require.NoError(t, err)
	require.IsType(t, &RollbackStmt{}, stmt)
}

func TestParseIndexStatements(t *testing.T) {
	stmt, err := Parse("CREATE UNIQUE INDEX idx_email ON users (email)")
	require.NoError(t, err)
	ci := stmt.(*CreateIndexStmt)
	require.True(t, ci.Unique)
	require.Equal(t, "BTREE", ci.Using)

	stmt, err = Parse("CREATE INDEX idx_emb ON docs (emb) USING HNSW")
	require.NoError(t, err)
	require.Equal(t, "HNSW", stmt.(*CreateIndexStmt).Using)

	stmt, err = Parse("DROP INDEX idx_email ON users")
	require.NoError(t, err)
	di := stmt.(*DropIndexStmt)
	require.Equal(t, "idx_email", di.Name)
	require.Equal(t, "users", di.Table)
}

func TestParseExtensionStatements(t *testing.T) {
	stmt, err := Parse("CREATE EXTENSION mathx")
	require.NoError(t, err)
	require.Equal(t, "mathx", stmt.(*CreateExtensionStmt).Name)

	stmt, err = Parse("CREATE EXTENSION geo WITH PATH '/usr/lib/geo.so'")
	require.NoError(t, err)
	ce := stmt.(*CreateExtensionStmt)
	require.Equal(t, "/usr/lib/geo.so", ce.Path)

	stmt, err = Parse("DROP EXTENSION mathx")
	require.NoError(t, err)
	require.Equal(t, "mathx", stmt.(*DropExtensionStmt).Name)
}

func TestParseCopy(t *testing.T) {
	stmt, err := Parse("COPY users FROM '/tmp/users.csv'")
	require.NoError(t, err)
	cp := stmt.(*CopyStmt)
	require.Equal(t, "users", cp.Table)
	require.Equal(t, "/tmp/users.csv", cp.Path)
}

func TestParseUpdateDelete(t *testing.T) {
	stmt, err := Parse("UPDATE users SET name = 'Bob', score = score + 1 WHERE id = 7")
	require.NoError(t, err)
	up := stmt.(*UpdateStmt)
	require.Len(t, up.Assignments, 2)
	require.NotNil(t, up.Where)

	stmt, err = Parse("DELETE FROM users WHERE id = 7")
	require.NoError(t, err)
	require.NotNil(t, stmt.(*DeleteStmt).Where)
}

func TestParseErrorsCarryPosition(t *testing.T) {
	_, err := Parse("SELECT FROM users")
	require.Error(t, err)
	var pe *errors.ParseError
	require.ErrorAs(t, err, &pe)
	require.Greater(t, pe.Position, 0)
	require.NotEmpty(t, pe.Expected)
}

func TestParseUnsupportedFeatures(t *testing.T) {
	_, err := Parse("SELECT a FROM t GROUP BY a")
	var fu *errors.FeatureUnsupportedError
	require.ErrorAs(t, err, &fu)

	_, err = Parse("SELECT a FROM t JOIN u")
	require.ErrorAs(t, err, &fu)
}

func TestParseScriptMultipleStatements(t *testing.T) {
	stmts, err := ParseScript("BEGIN; INSERT INTO t VALUES (1); COMMIT;")
	require.NoError(t, err)
	require.Len(t, stmts, 3)
}
