package expr

type node interface {
	at() int
}

type litNode struct {
	val any
	pos int
}

type identNode struct {
	name string
	pos  int
}

type memberNode struct {
	x    node
	name string
	pos  int
}

type indexNode struct {
	x   node
	key node
	pos int
}

type unaryNode struct {
	op  tokenKind
	x   node
	pos int
}

type binaryNode struct {
	op   tokenKind
	x, y node
	pos  int
}

type callNode struct {
	name string
	args []node
	pos  int
}

type pipeNode struct {
	x    node
	name string
	args []node
	pos  int
}

type arrayNode struct {
	elems []node
	pos   int
}

func (n *litNode) at() int    { return n.pos }
func (n *identNode) at() int  { return n.pos }
func (n *memberNode) at() int { return n.pos }
func (n *indexNode) at() int  { return n.pos }
func (n *unaryNode) at() int  { return n.pos }
func (n *binaryNode) at() int { return n.pos }
func (n *callNode) at() int   { return n.pos }
func (n *pipeNode) at() int   { return n.pos }
func (n *arrayNode) at() int  { return n.pos }
