package backend

type RefKind uint8

const (
	RefKindBranch RefKind = iota
	RefKindRemoteBranch
	RefKindTag
	RefKindStash
)

type Ref struct {
	Hash string
	Kind RefKind
	Name string // short name: main, origin/main, v1
}

// Label is the decoration shown next to a commit for r.
func (r Ref) Label() string {
	if r.Kind == RefKindTag {
		return "tag: " + r.Name
	}
	return r.Name
}
