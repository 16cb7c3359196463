package btree

import (
	"bytes"
)

// DefaultDegree é o grau mínimo usado pelos índices do engine.
const DefaultDegree = 32

// BPlusTree mapeia chaves (bytes) para Refs no log. As folhas formam uma
// lista ligada para scans ordenados.
type BPlusTree struct {
	T    int
	Root *Node
	size int // Número de chaves vivas
}

func NewTree(t int) *BPlusTree {
	return &BPlusTree{
		T:    t,
		Root: NewNode(t, true),
	}
}

// Len retorna o número de chaves na árvore.
func (b *BPlusTree) Len() int {
	return b.size
}

// Get retorna o Ref associado à chave.
func (b *BPlusTree) Get(key []byte) (Ref, bool) {
	curr := b.Root

	for !curr.Leaf {
		i := 0
		for i < curr.N && bytes.Compare(key, curr.Keys[i]) >= 0 {
			i++
		}
		curr = curr.Children[i]
	}

	idx := curr.lowerBound(key)
	if idx < curr.N && bytes.Equal(curr.Keys[idx], key) {
		return curr.Refs[idx], true
	}
	return Ref{}, false
}

// Set insere ou substitui o Ref da chave.
func (b *BPlusTree) Set(key []byte, ref Ref) {
	// O callback nunca retorna erro, então o Upsert também não.
	_ = b.Upsert(key, func(old Ref, exists bool) (Ref, error) {
		return ref, nil
	})
}

// Upsert executa fn sobre o Ref atual (se existir) e grava o retorno.
// Permite read-modify-write atômico do ponto de vista da árvore.
func (b *BPlusTree) Upsert(key []byte, fn func(old Ref, exists bool) (Ref, error)) error {
	root := b.Root

	if root.IsFull() {
		// Split preventivo da raiz antes de descer
		newRoot := NewNode(b.T, false)
		newRoot.Children = append(newRoot.Children, root)
		newRoot.SplitChild(0)
		b.Root = newRoot
		root = newRoot
	}

	inserted, err := root.UpsertNonFull(key, fn)
	if err != nil {
		return err
	}
	if inserted {
		b.size++
	}
	return nil
}

// Remove apaga a chave; retorna false se não existia.
func (b *BPlusTree) Remove(key []byte) bool {
	removed := b.Root.remove(key)
	if removed {
		b.size--
	}

	// Raiz interna vazia: colapsa um nível
	if b.Root.N == 0 && !b.Root.Leaf {
		b.Root = b.Root.Children[0]
	}
	return removed
}

// FindLeafLowerBound localiza a folha e o índice da primeira chave >= key.
// key == nil posiciona no início da árvore.
func (b *BPlusTree) FindLeafLowerBound(key []byte) (*Node, int) {
	curr := b.Root

	for !curr.Leaf {
		i := curr.lowerBound(key)
		// Separador igual à chave: a chave vive na subárvore direita
		if i < curr.N && key != nil && bytes.Equal(curr.Keys[i], key) {
			i++
		}
		curr = curr.Children[i]
	}

	return curr, curr.lowerBound(key)
}
