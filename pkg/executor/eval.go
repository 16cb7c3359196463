package executor

import (
	"strings"

	"github.com/tegdb/tegdb/pkg/catalog"
	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/sql"
	"github.com/tegdb/tegdb/pkg/types"
)

// evalContext avalia expressões sobre uma linha decodificada.
// row == nil restringe a avaliação a expressões constantes.
type evalContext struct {
	schema   *catalog.TableSchema
	row      []types.Value
	params   []types.Value
	registry *Registry
}

func (c *evalContext) eval(e sql.Expr) (types.Value, error) {
	switch x := e.(type) {
	case *sql.Literal:
		return x.Value, nil

	case *sql.Param:
		if x.Index >= len(c.params) {
			return types.Value{}, &errors.SchemaError{Msg: "missing value for parameter"}
		}
		return c.params[x.Index], nil

	case *sql.ColumnRef:
		if c.row == nil || c.schema == nil {
			return types.Value{}, &errors.SchemaError{Msg: "column " + x.Name + " referenced in a constant context"}
		}
		_, idx, ok := c.schema.Column(x.Name)
		if !ok {
			return types.Value{}, &errors.ColumnNotFoundError{Table: c.schema.Name, Column: x.Name}
		}
		return c.row[idx], nil

	case *sql.Unary:
		v, err := c.eval(x.Expr)
		if err != nil {
			return types.Value{}, err
		}
		if !x.Neg || v.IsNull() {
			return v, nil
		}
		switch v.Type {
		case types.TypeInteger:
			return types.NewInteger(-v.Int), nil
		case types.TypeReal:
			return types.NewReal(-v.Real), nil
		}
		return types.Value{}, &errors.SchemaError{Msg: "cannot negate " + v.Type.String()}

	case *sql.FuncCall:
		fn, ok := c.registry.Lookup(x.Name)
		if !ok {
			return types.Value{}, &errors.SchemaError{Msg: "unknown function " + x.Name}
		}
		args := make([]types.Value, len(x.Args))
		for i, a := range x.Args {
			v, err := c.eval(a)
			if err != nil {
				return types.Value{}, err
			}
			args[i] = v
		}
		return fn(args)

	case *sql.Binary:
		return c.evalBinary(x)
	}
	return types.Value{}, &errors.SchemaError{Msg: "unsupported expression"}
}

func boolValue(b bool) types.Value {
	if b {
		return types.NewInteger(1)
	}
	return types.NewInteger(0)
}

// truthy: NULL é falso; inteiro/real diferente de zero e TEXT não vazio são
// verdadeiros; demais tipos são falsos.
func truthy(v types.Value) bool {
	if v.IsNull() {
		return false
	}
	switch v.Type {
	case types.TypeInteger:
		return v.Int != 0
	case types.TypeReal:
		return v.Real != 0
	case types.TypeText:
		return v.Text != ""
	}
	return false
}

func (c *evalContext) evalBool(e sql.Expr) (bool, error) {
	if e == nil {
		return true, nil
	}
	v, err := c.eval(e)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func (c *evalContext) evalBinary(b *sql.Binary) (types.Value, error) {
	// AND/OR com curto-circuito
	switch b.Op {
	case sql.OpAnd:
		l, err := c.evalBool(b.Left)
		if err != nil {
			return types.Value{}, err
		}
		if !l {
			return boolValue(false), nil
		}
		r, err := c.evalBool(b.Right)
		if err != nil {
			return types.Value{}, err
		}
		return boolValue(r), nil
	case sql.OpOr:
		l, err := c.evalBool(b.Left)
		if err != nil {
			return types.Value{}, err
		}
		if l {
			return boolValue(true), nil
		}
		r, err := c.evalBool(b.Right)
		if err != nil {
			return types.Value{}, err
		}
		return boolValue(r), nil
	}

	left, err := c.eval(b.Left)
	if err != nil {
		return types.Value{}, err
	}
	right, err := c.eval(b.Right)
	if err != nil {
		return types.Value{}, err
	}

	switch b.Op {
	case sql.OpEq:
		return boolValue(left.Equal(right)), nil
	case sql.OpNotEq:
		if left.IsNull() || right.IsNull() {
			return boolValue(false), nil
		}
		return boolValue(left.Compare(right) != 0), nil
	case sql.OpLt, sql.OpLtEq, sql.OpGt, sql.OpGtEq:
		if left.IsNull() || right.IsNull() {
			return boolValue(false), nil
		}
		cmp := left.Compare(right)
		switch b.Op {
		case sql.OpLt:
			return boolValue(cmp < 0), nil
		case sql.OpLtEq:
			return boolValue(cmp <= 0), nil
		case sql.OpGt:
			return boolValue(cmp > 0), nil
		default:
			return boolValue(cmp >= 0), nil
		}
	case sql.OpLike:
		if left.Type != types.TypeText || right.Type != types.TypeText {
			return boolValue(false), nil
		}
		return boolValue(likeMatch(right.Text, left.Text)), nil
	case sql.OpAdd, sql.OpSub, sql.OpMul, sql.OpDiv:
		return evalArithmetic(b.Op, left, right)
	}
	return types.Value{}, &errors.SchemaError{Msg: "unsupported operator " + b.Op.String()}
}

func evalArithmetic(op sql.BinaryOp, left, right types.Value) (types.Value, error) {
	if left.IsNull() || right.IsNull() {
		return types.NewNull(), nil
	}

	// Inteiro puro permanece inteiro (exceto divisão por zero)
	if left.Type == types.TypeInteger && right.Type == types.TypeInteger {
		switch op {
		case sql.OpAdd:
			return types.NewInteger(left.Int + right.Int), nil
		case sql.OpSub:
			return types.NewInteger(left.Int - right.Int), nil
		case sql.OpMul:
			return types.NewInteger(left.Int * right.Int), nil
		case sql.OpDiv:
			if right.Int == 0 {
				return types.NewNull(), nil
			}
			return types.NewInteger(left.Int / right.Int), nil
		}
	}

	a, aok := left.AsReal()
	b, bok := right.AsReal()
	if !aok || !bok {
		return types.Value{}, &errors.SchemaError{Msg: "arithmetic on non-numeric values"}
	}
	switch op {
	case sql.OpAdd:
		return types.NewReal(a + b), nil
	case sql.OpSub:
		return types.NewReal(a - b), nil
	case sql.OpMul:
		return types.NewReal(a * b), nil
	default:
		if b == 0 {
			return types.NewNull(), nil
		}
		return types.NewReal(a / b), nil
	}
}

// likeMatch implementa LIKE com '%' (qualquer sequência) e '_' (um byte),
// case-insensitive como no SQL padrão.
func likeMatch(pattern, text string) bool {
	return likeMatchFold(strings.ToLower(pattern), strings.ToLower(text))
}

func likeMatchFold(p, s string) bool {
	// Matching guloso com backtracking de um nível para '%'
	var starP, starS = -1, 0
	pi, si := 0, 0
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '_' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '%':
			starP = pi
			starS = si
			pi++
		case starP != -1:
			starS++
			si = starS
			pi = starP + 1
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}
