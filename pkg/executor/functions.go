package executor

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/tegdb/tegdb/pkg/errors"
	"github.com/tegdb/tegdb/pkg/types"
)

// ScalarFunc é um avaliador puro sobre valores SQL. Extensões registram
// funções com esta assinatura; o core não inspeciona seus corpos.
type ScalarFunc func(args []types.Value) (types.Value, error)

// Registry mapeia nomes (maiúsculos) para funções escalares.
type Registry struct {
	funcs map[string]ScalarFunc
}

// NewRegistry cria o registro com as funções built-in.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]ScalarFunc)}

	r.funcs["ABS"] = fnAbs
	r.funcs["LENGTH"] = fnLength
	r.funcs["UPPER"] = fnUpper
	r.funcs["LOWER"] = fnLower

	r.funcs["COSINE_SIMILARITY"] = fnCosineSimilarity
	r.funcs["EUCLIDEAN_DISTANCE"] = fnEuclideanDistance
	r.funcs["DOT_PRODUCT"] = fnDotProduct
	r.funcs["L2_NORMALIZE"] = fnL2Normalize
	r.funcs["EMBED"] = fnEmbed

	return r
}

// Register adiciona uma função; falha se o nome já existe.
func (r *Registry) Register(name string, fn ScalarFunc) error {
	upper := strings.ToUpper(name)
	if _, exists := r.funcs[upper]; exists {
		return &errors.SchemaError{Msg: "function " + upper + " already registered"}
	}
	r.funcs[upper] = fn
	return nil
}

// Unregister remove uma função registrada por extensão.
func (r *Registry) Unregister(name string) {
	delete(r.funcs, strings.ToUpper(name))
}

// Lookup resolve o nome.
func (r *Registry) Lookup(name string) (ScalarFunc, bool) {
	fn, ok := r.funcs[strings.ToUpper(name)]
	return fn, ok
}

// === Built-ins escalares ===

func fnAbs(args []types.Value) (types.Value, error) {
	if len(args) != 1 {
		return types.Value{}, &errors.SchemaError{Msg: "ABS expects 1 argument"}
	}
	v := args[0]
	if v.IsNull() {
		return types.NewNull(), nil
	}
	switch v.Type {
	case types.TypeInteger:
		if v.Int < 0 {
			return types.NewInteger(-v.Int), nil
		}
		return v, nil
	case types.TypeReal:
		return types.NewReal(math.Abs(v.Real)), nil
	}
	return types.Value{}, &errors.SchemaError{Msg: "ABS expects a numeric argument"}
}

func fnLength(args []types.Value) (types.Value, error) {
	if len(args) != 1 {
		return types.Value{}, &errors.SchemaError{Msg: "LENGTH expects 1 argument"}
	}
	v := args[0]
	if v.IsNull() {
		return types.NewNull(), nil
	}
	switch v.Type {
	case types.TypeText:
		return types.NewInteger(int64(len(v.Text))), nil
	case types.TypeVector:
		return types.NewInteger(int64(len(v.Vec))), nil
	}
	return types.Value{}, &errors.SchemaError{Msg: "LENGTH expects TEXT or VECTOR"}
}

func fnUpper(args []types.Value) (types.Value, error) {
	if len(args) != 1 || args[0].Type != types.TypeText {
		if len(args) == 1 && args[0].IsNull() {
			return types.NewNull(), nil
		}
		return types.Value{}, &errors.SchemaError{Msg: "UPPER expects a TEXT argument"}
	}
	return types.NewText(strings.ToUpper(args[0].Text)), nil
}

func fnLower(args []types.Value) (types.Value, error) {
	if len(args) != 1 || args[0].Type != types.TypeText {
		if len(args) == 1 && args[0].IsNull() {
			return types.NewNull(), nil
		}
		return types.Value{}, &errors.SchemaError{Msg: "LOWER expects a TEXT argument"}
	}
	return types.NewText(strings.ToLower(args[0].Text)), nil
}

// === Funções vetoriais ===

func vectorPair(name string, args []types.Value) ([]float64, []float64, error) {
	if len(args) != 2 || args[0].Type != types.TypeVector || args[1].Type != types.TypeVector {
		return nil, nil, &errors.SchemaError{Msg: name + " expects 2 VECTOR arguments"}
	}
	a, b := args[0].Vec, args[1].Vec
	if len(a) != len(b) {
		return nil, nil, &errors.ConstraintViolationError{Kind: errors.VectorDimMismatch, Column: name, Value: fmt.Sprintf("%d vs %d", len(a), len(b))}
	}
	return a, b, nil
}

func fnCosineSimilarity(args []types.Value) (types.Value, error) {
	a, b, err := vectorPair("COSINE_SIMILARITY", args)
	if err != nil {
		return types.Value{}, err
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return types.NewReal(0), nil
	}
	return types.NewReal(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

func fnEuclideanDistance(args []types.Value) (types.Value, error) {
	a, b, err := vectorPair("EUCLIDEAN_DISTANCE", args)
	if err != nil {
		return types.Value{}, err
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return types.NewReal(math.Sqrt(sum)), nil
}

func fnDotProduct(args []types.Value) (types.Value, error) {
	a, b, err := vectorPair("DOT_PRODUCT", args)
	if err != nil {
		return types.Value{}, err
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return types.NewReal(dot), nil
}

func fnL2Normalize(args []types.Value) (types.Value, error) {
	if len(args) != 1 || args[0].Type != types.TypeVector {
		return types.Value{}, &errors.SchemaError{Msg: "L2_NORMALIZE expects a VECTOR argument"}
	}
	v := args[0].Vec
	var norm float64
	for _, f := range v {
		norm += f * f
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(v))
	if norm > 0 {
		for i, f := range v {
			out[i] = f / norm
		}
	}
	return types.NewVector(out), nil
}

// fnEmbed gera um pseudo-embedding determinístico por hash. O embedder de
// verdade é um colaborador externo; esta função existe para que pipelines
// vetoriais parseiem e executem fim-a-fim.
func fnEmbed(args []types.Value) (types.Value, error) {
	if len(args) != 2 || args[0].Type != types.TypeText || args[1].Type != types.TypeInteger {
		return types.Value{}, &errors.SchemaError{Msg: "EMBED expects (TEXT, INTEGER dimension)"}
	}
	dim := int(args[1].Int)
	if dim <= 0 {
		return types.Value{}, &errors.SchemaError{Msg: "EMBED dimension must be positive"}
	}

	out := make([]float64, dim)
	for i := range out {
		h := fnv.New64a()
		fmt.Fprintf(h, "%d:%s", i, args[0].Text)
		// Espalha o hash em [-1, 1)
		out[i] = float64(int64(h.Sum64()))/math.MaxInt64
	}
	v, err := fnL2Normalize([]types.Value{types.NewVector(out)})
	if err != nil {
		return types.Value{}, err
	}
	return v, nil
}
