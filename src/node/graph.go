package node

import (
	hg "github.com/mosaicnetworks/dagsync/src/hashgraph"
	sg "github.com/mosaicnetworks/dagsync/src/shadowgraph"
)

// EventInfo describes one indexed event.
type EventInfo struct {
	Hash         string
	Creator      uint32
	SelfParent   string   `json:",omitempty"`
	OtherParents []string `json:",omitempty"`
	Generation   int64
	BirthRound   int64
	Transactions int
}

// Infos is the object used by Graph to collect information about a
// Shadowgraph.
type Infos struct {
	Window hg.EventWindow
	Tips   []string
	Events map[uint32][]EventInfo
}

// Graph is a struct containing a node which is used to collect information
// about the underlying Shadowgraph in view of producing a visual
// representation of it.
type Graph struct {
	*Node
}

// NewGraph instantiates a Graph from a Node.
func NewGraph(n *Node) *Graph {
	return &Graph{
		Node: n,
	}
}

// GetCreatorEvents returns the indexed events grouped by creator, in
// ascending indicator order.
func (g *Graph) GetCreatorEvents() map[uint32][]EventInfo {
	graph := g.Node.core.Graph()

	all := graph.FindAncestors(graph.Tips(), func(*sg.ShadowEvent) bool { return true }).Events()
	hg.SortByIndicator(all, graph.Mode())

	res := make(map[uint32][]EventInfo)
	for _, e := range all {
		info := EventInfo{
			Hash:         e.Hex(),
			Creator:      e.Creator(),
			Generation:   e.Generation(),
			BirthRound:   e.BirthRound(),
			Transactions: len(e.Transactions()),
		}
		if !e.SelfParent().IsZero() {
			info.SelfParent = e.SelfParent().Hex()
		}
		for _, op := range e.OtherParents() {
			info.OtherParents = append(info.OtherParents, op.Hex())
		}
		res[e.Creator()] = append(res[e.Creator()], info)
	}

	return res
}

// GetTips returns the hashes of the current tips.
func (g *Graph) GetTips() []string {
	tips := g.Node.core.Graph().Tips()
	res := make([]string, len(tips))
	for i, t := range tips {
		res[i] = t.Hash().Hex()
	}
	return res
}

// GetInfos returns an Infos struct representing the entire Shadowgraph.
func (g *Graph) GetInfos() Infos {
	return Infos{
		Window: g.Node.core.EventWindow(),
		Tips:   g.GetTips(),
		Events: g.GetCreatorEvents(),
	}
}
