package btree

import (
	"bytes"
	"sort"
)

// Ref aponta para a versão viva de uma chave dentro do arquivo .teg.
// Valores pequenos ficam em Inline e dispensam leitura do disco.
type Ref struct {
	Offset int64  // Offset absoluto do payload do valor no arquivo
	Len    uint32 // Tamanho do valor em bytes
	Inline []byte // Cópia inline do valor (nil quando só em disco)
}

type Node struct {
	T        int      // Grau mínimo
	Keys     [][]byte // Chaves (bytes da row key)
	Refs     []Ref    // Ponteiros para os dados (apenas em folhas)
	Children []*Node  // Filhos (apenas em nós internos)
	Leaf     bool     // Se é folha
	N        int      // Número de chaves atual
	Next     *Node    // Ponteiro para a próxima folha (lista ligada)
}

func NewNode(t int, leaf bool) *Node {
	return &Node{
		T:        t,
		Leaf:     leaf,
		Keys:     make([][]byte, 0, 2*t-1),
		Refs:     make([]Ref, 0, 2*t-1),
		Children: make([]*Node, 0, 2*t),
	}
}

func (n *Node) IsFull() bool {
	return n.N == 2*n.T-1
}

// lowerBound retorna o primeiro índice i tal que Keys[i] >= key.
// key == nil significa "antes de tudo".
func (n *Node) lowerBound(key []byte) int {
	if key == nil {
		return 0
	}
	return sort.Search(n.N, func(i int) bool {
		return bytes.Compare(n.Keys[i], key) >= 0
	})
}

// UpsertNonFull realiza a inserção ou atualização na folha, executando o callback.
// Garantido pela descida com split preventivo que n nunca está cheio.
func (n *Node) UpsertNonFull(key []byte, fn func(old Ref, exists bool) (Ref, error)) (inserted bool, err error) {
	if n.Leaf {
		idx := n.lowerBound(key)

		// Se a chave já existe
		if idx < n.N && bytes.Equal(n.Keys[idx], key) {
			newRef, err := fn(n.Refs[idx], true)
			if err != nil {
				return false, err
			}
			n.Refs[idx] = newRef
			return false, nil
		}

		newRef, err := fn(Ref{}, false)
		if err != nil {
			return false, err
		}

		// Abre espaço para a nova chave
		n.Keys = append(n.Keys, nil)
		n.Refs = append(n.Refs, Ref{})
		copy(n.Keys[idx+1:], n.Keys[idx:])
		copy(n.Refs[idx+1:], n.Refs[idx:])

		n.Keys[idx] = key
		n.Refs[idx] = newRef
		n.N++
		return true, nil
	}

	// Nó interno: encontra o filho correto
	i := 0
	for i < n.N && bytes.Compare(key, n.Keys[i]) >= 0 {
		i++
	}

	if n.Children[i].IsFull() {
		n.SplitChild(i)
		if bytes.Compare(key, n.Keys[i]) >= 0 {
			i++
		}
	}
	return n.Children[i].UpsertNonFull(key, fn)
}

func (n *Node) SplitChild(i int) {
	t := n.T
	y := n.Children[i]
	z := NewNode(t, y.Leaf)

	// Se for folha, mantém a chave do meio na direita (propriedade B+ Tree)
	if y.Leaf {
		mid := t - 1
		z.N = y.N - mid
		z.Keys = append(z.Keys, y.Keys[mid:]...)
		z.Refs = append(z.Refs, y.Refs[mid:]...)

		y.Keys = y.Keys[:mid]
		y.Refs = y.Refs[:mid]
		y.N = mid

		z.Next = y.Next
		y.Next = z
	} else {
		// Nó interno: chave do meio sobe e sai do filho
		mid := t - 1
		z.N = t - 1
		z.Keys = append(z.Keys, y.Keys[mid+1:]...)
		z.Children = append(z.Children, y.Children[mid+1:]...)

		upKey := y.Keys[mid]

		y.Keys = y.Keys[:mid]
		y.Children = y.Children[:mid+1]
		y.N = mid

		// Abre espaço no pai para a chave que sobe
		n.Keys = append(n.Keys, nil)
		copy(n.Keys[i+1:], n.Keys[i:])
		n.Keys[i] = upKey

		n.Children = append(n.Children, nil)
		copy(n.Children[i+2:], n.Children[i+1:])
		n.Children[i+1] = z
		n.N++
		return
	}

	// No caso de folha, a primeira chave do novo nó z sobe para o pai
	n.Keys = append(n.Keys, nil)
	copy(n.Keys[i+1:], n.Keys[i:])
	n.Keys[i] = z.Keys[0]

	n.Children = append(n.Children, nil)
	copy(n.Children[i+2:], n.Children[i+1:])
	n.Children[i+1] = z
	n.N++
}

func (n *Node) remove(key []byte) bool {
	idx := n.lowerBound(key)

	if n.Leaf {
		if idx < n.N && bytes.Equal(n.Keys[idx], key) {
			n.Keys = append(n.Keys[:idx], n.Keys[idx+1:]...)
			n.Refs = append(n.Refs[:idx], n.Refs[idx+1:]...)
			n.N--
			return true
		}
		return false
	}

	// Se a chave estiver no nó interno (como separador), o valor real está na
	// folha à direita. Na B+ Tree, apenas descemos.
	childIdx := idx
	if idx < n.N && bytes.Equal(n.Keys[idx], key) {
		childIdx = idx + 1
	}

	child := n.Children[childIdx]
	if child.N < n.T {
		n.fill(childIdx)
	}

	// Após rebalancear, a chave pode ter mudado de filho
	return n.removeRecursive(key)
}

func (n *Node) removeRecursive(key []byte) bool {
	idx := n.lowerBound(key)

	childIdx := idx
	if idx < n.N && bytes.Equal(n.Keys[idx], key) {
		childIdx = idx + 1
	}

	// Se o filho foi fundido, childIdx pode estar fora agora
	if childIdx > n.N {
		childIdx = n.N
	}

	ok := n.Children[childIdx].remove(key)

	// Sincroniza separadores se necessário (após deleção na folha)
	if ok {
		n.fixSeparators()
	}

	return ok
}

func (n *Node) fixSeparators() {
	if n.Leaf {
		return
	}
	for i := 0; i < n.N; i++ {
		// No B+ Tree, o separador i é a menor chave da subárvore Children[i+1]
		curr := n.Children[i+1]
		for !curr.Leaf {
			curr = curr.Children[0]
		}
		if curr.N > 0 {
			n.Keys[i] = curr.Keys[0]
		}
	}
}

func (n *Node) fill(i int) {
	if i != 0 && n.Children[i-1].N >= n.T {
		n.borrowFromPrev(i)
	} else if i != n.N && n.Children[i+1].N >= n.T {
		n.borrowFromNext(i)
	} else {
		if i != n.N {
			n.merge(i)
		} else {
			n.merge(i - 1)
		}
	}
}

func (n *Node) borrowFromPrev(i int) {
	child := n.Children[i]
	sibling := n.Children[i-1]

	if child.Leaf {
		child.Keys = append([][]byte{nil}, child.Keys...)
		child.Refs = append([]Ref{{}}, child.Refs...)
		child.Keys[0] = sibling.Keys[sibling.N-1]
		child.Refs[0] = sibling.Refs[sibling.N-1]
		child.N++

		sibling.Keys = sibling.Keys[:sibling.N-1]
		sibling.Refs = sibling.Refs[:sibling.N-1]
		sibling.N--

		n.Keys[i-1] = child.Keys[0]
	} else {
		child.Keys = append([][]byte{nil}, child.Keys...)
		child.Children = append([]*Node{nil}, child.Children...)
		child.Keys[0] = n.Keys[i-1]
		child.Children[0] = sibling.Children[sibling.N]
		child.N++

		n.Keys[i-1] = sibling.Keys[sibling.N-1]
		sibling.Keys = sibling.Keys[:sibling.N-1]
		sibling.Children = sibling.Children[:sibling.N]
		sibling.N--
	}
}

func (n *Node) borrowFromNext(i int) {
	child := n.Children[i]
	sibling := n.Children[i+1]

	if child.Leaf {
		child.Keys = append(child.Keys, sibling.Keys[0])
		child.Refs = append(child.Refs, sibling.Refs[0])
		child.N++

		sibling.Keys = append([][]byte{}, sibling.Keys[1:]...)
		sibling.Refs = append([]Ref{}, sibling.Refs[1:]...)
		sibling.N--

		n.Keys[i] = sibling.Keys[0]
	} else {
		child.Keys = append(child.Keys, n.Keys[i])
		child.Children = append(child.Children, sibling.Children[0])
		child.N++

		n.Keys[i] = sibling.Keys[0]
		sibling.Keys = append([][]byte{}, sibling.Keys[1:]...)
		sibling.Children = append([]*Node{}, sibling.Children[1:]...)
		sibling.N--
	}
}

func (n *Node) merge(i int) {
	child := n.Children[i]
	sibling := n.Children[i+1]

	if child.Leaf {
		child.Keys = append(child.Keys, sibling.Keys...)
		child.Refs = append(child.Refs, sibling.Refs...)
		child.Next = sibling.Next
		child.N = len(child.Keys)
	} else {
		child.Keys = append(child.Keys, n.Keys[i])
		child.Keys = append(child.Keys, sibling.Keys...)
		child.Children = append(child.Children, sibling.Children...)
		child.N = len(child.Keys)
	}

	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Children = append(n.Children[:i+1], n.Children[i+2:]...)
	n.N--
}
