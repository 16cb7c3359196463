package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tegdb/tegdb/pkg/catalog"
	"github.com/tegdb/tegdb/pkg/sql"
	"github.com/tegdb/tegdb/pkg/types"
)

func fixture(t *testing.T) *Planner {
	t.Helper()

	users, err := catalog.NewTableSchema("users", []catalog.Column{
		{Name: "id", Type: types.TypeInteger, PKPos: 1},
		{Name: "email", Type: types.TypeText, Width: 32, Unique: true, Nullable: true},
		{Name: "age", Type: types.TypeInteger, Nullable: true},
	})
	require.NoError(t, err)

	k, err := catalog.NewTableSchema("k", []catalog.Column{
		{Name: "a", Type: types.TypeInteger, PKPos: 1},
		{Name: "b", Type: types.TypeInteger, PKPos: 2},
		{Name: "c", Type: types.TypeInteger, Nullable: true},
	})
	require.NoError(t, err)

	schemas := map[string]*catalog.TableSchema{"users": users, "k": k}
	indexes := map[string][]*catalog.IndexDef{
		"users": {
			{Name: "idx_age", Table: "users", Column: "age", Kind: catalog.KindBTree},
		},
	}
	return New(schemas, indexes)
}

func plan(t *testing.T, pl *Planner, src string) Plan {
	t.Helper()
	stmt, err := sql.Parse(src)
	require.NoError(t, err)
	p, err := pl.PlanStatement(stmt)
	require.NoError(t, err)
	return p
}

func TestFullPrimaryKeyEqualityChoosesLookup(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT c FROM k WHERE a = 1 AND b = 2")
	lookup, ok := p.(*PrimaryKeyLookup)
	require.True(t, ok, "expected PrimaryKeyLookup, got %T", p)
	require.Len(t, lookup.PKValues, 2)
	require.Nil(t, lookup.Filter)
}

func TestPartialPrimaryKeyFallsBackToTableScan(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT c FROM k WHERE a = 1")
	_, ok := p.(*TableScan)
	require.True(t, ok, "expected TableScan, got %T", p)
}

func TestDisjunctionOverPKDisablesLookup(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT c FROM k WHERE a = 1 OR b = 2")
	scan, ok := p.(*TableScan)
	require.True(t, ok, "expected TableScan, got %T", p)
	require.NotNil(t, scan.Filter)
}

func TestResidualFilterKeptOnLookup(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT c FROM k WHERE a = 1 AND b = 2 AND c > 5")
	lookup, ok := p.(*PrimaryKeyLookup)
	require.True(t, ok)
	require.NotNil(t, lookup.Filter)
}

func TestUniqueColumnEqualityUsesConstraintProbe(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT id FROM users WHERE email = 'a@x'")
	scan, ok := p.(*SecondaryIndexScan)
	require.True(t, ok, "expected SecondaryIndexScan, got %T", p)
	require.True(t, scan.Unique)
	require.NotNil(t, scan.Bounds.Equal)
}

func TestSecondaryIndexRangeScan(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT id FROM users WHERE age >= 18 AND age < 65")
	scan, ok := p.(*SecondaryIndexScan)
	require.True(t, ok, "expected SecondaryIndexScan, got %T", p)
	require.Equal(t, "idx_age", scan.Index.Name)
	require.NotNil(t, scan.Bounds.Lower)
	require.NotNil(t, scan.Bounds.Upper)
	require.True(t, scan.Bounds.LowerInc)
	require.False(t, scan.Bounds.UpperInc)
}

func TestUniquePreferredOverNonUnique(t *testing.T) {
	pl := fixture(t)

	// email (unique) e age (não-unique) ambos com igualdade: unique vence
	p := plan(t, pl, "SELECT id FROM users WHERE email = 'a@x' AND age = 30")
	scan, ok := p.(*SecondaryIndexScan)
	require.True(t, ok)
	require.True(t, scan.Index.Unique)
	require.Equal(t, "email", scan.Index.Column)
}

func TestNoPredicateIsPlainTableScan(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT id FROM users")
	scan, ok := p.(*TableScan)
	require.True(t, ok)
	require.Nil(t, scan.Filter)
	require.Nil(t, scan.Limit)
}

func TestOrderByPrimaryKeyAscIsFree(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT id FROM users ORDER BY id LIMIT 5")
	scan, ok := p.(*TableScan)
	require.True(t, ok, "ORDER BY pk ASC should not wrap, got %T", p)
	require.NotNil(t, scan.Limit, "LIMIT should push into the ordered scan")
}

func TestOrderByOtherColumnWraps(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT id FROM users ORDER BY age DESC LIMIT 5")
	ob, ok := p.(*OrderBy)
	require.True(t, ok, "expected OrderBy, got %T", p)
	require.True(t, ob.Keys[0].Desc)
	require.NotNil(t, ob.Limit)

	// O scan interno não recebe o LIMIT (a ordem não é a natural)
	scan := ob.Input.(*TableScan)
	require.Nil(t, scan.Limit)
}

func TestAggregateWrapsScan(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "SELECT COUNT(*), AVG(age) FROM users WHERE age > 10")
	agg, ok := p.(*Aggregate)
	require.True(t, ok, "expected Aggregate, got %T", p)
	require.Len(t, agg.Items, 2)
}

func TestDMLPlans(t *testing.T) {
	pl := fixture(t)

	p := plan(t, pl, "INSERT INTO users VALUES (1, 'a@x', 20)")
	require.IsType(t, &Insert{}, p)

	p = plan(t, pl, "UPDATE users SET age = 21 WHERE id = 1")
	up := p.(*Update)
	require.IsType(t, &PrimaryKeyLookup{}, up.ScanPlan)

	p = plan(t, pl, "DELETE FROM users WHERE age > 90")
	del := p.(*Delete)
	require.IsType(t, &SecondaryIndexScan{}, del.ScanPlan)
}

func TestUnknownTableAndColumn(t *testing.T) {
	pl := fixture(t)

	stmt, err := sql.Parse("SELECT x FROM missing")
	require.NoError(t, err)
	_, err = pl.PlanStatement(stmt)
	require.Error(t, err)

	stmt, err = sql.Parse("SELECT nope FROM users")
	require.NoError(t, err)
	_, err = pl.PlanStatement(stmt)
	require.Error(t, err)
}
