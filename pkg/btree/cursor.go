package btree

// Cursor percorre as folhas em ordem de chave. Não é estável sob mutação:
// o engine é single-writer e nunca modifica a árvore durante uma iteração.
type Cursor struct {
	node *Node
	idx  int
}

// NewCursor cria um cursor não posicionado; chame Seek antes de usar.
func (b *BPlusTree) NewCursor() *Cursor {
	return &Cursor{}
}

// Seek posiciona o cursor na primeira chave >= key (nil = início).
func (c *Cursor) Seek(b *BPlusTree, key []byte) {
	c.node, c.idx = b.FindLeafLowerBound(key)
	c.skipEmpty()
}

// Valid reporta se o cursor aponta para uma entrada.
func (c *Cursor) Valid() bool {
	return c.node != nil && c.idx < c.node.N
}

func (c *Cursor) Key() []byte {
	return c.node.Keys[c.idx]
}

func (c *Cursor) Ref() Ref {
	return c.node.Refs[c.idx]
}

// Next avança para a próxima chave, seguindo a lista ligada de folhas.
func (c *Cursor) Next() {
	c.idx++
	c.skipEmpty()
}

func (c *Cursor) skipEmpty() {
	for c.node != nil && c.idx >= c.node.N {
		c.node = c.node.Next
		c.idx = 0
	}
}
