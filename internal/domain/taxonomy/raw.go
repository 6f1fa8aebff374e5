package taxonomy

// RawNode is an unbuilt taxonomy node as authored in config: a label plus
// ordered children. An empty child list marks a leaf. The loader preserves
// authoring order because sibling order decides similarity tie-breaks.
type RawNode struct {
	Label    string
	Children []RawNode
}
