package git

import "time"

// ShortIDLen is the length of the display prefix used for commit ids.
const ShortIDLen = 7

type Kind uint8

const (
	KindRegular Kind = iota
	KindStash
)

func (k Kind) String() string {
	if k == KindStash {
		return "stash"
	}
	return "commit"
}

type Person struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	When  time.Time `json:"timestamp"`
}

type ParentRef struct {
	ID      string `json:"oid"`
	ShortID string `json:"shortOid"`
}

// Commit is either a regular commit or a stash entry. Values are shared
// between layout rows and must not be modified once returned by a Source.
type Commit struct {
	Kind      Kind        `json:"type"`
	ID        string      `json:"oid"`
	ShortID   string      `json:"shortOid"`
	Message   string      `json:"message"`
	Parents   []ParentRef `json:"parents"`
	Author    Person      `json:"author"`
	Committer Person      `json:"committer"`
	RefName   string      `json:"refName,omitempty"` // stash only
}

// GraphParents returns the parent ids that take part in the graph layout.
// Stash entries are always leaves.
func (c *Commit) GraphParents() []string {
	if c == nil || c.Kind == KindStash || len(c.Parents) == 0 {
		return nil
	}
	ids := make([]string, len(c.Parents))
	for i, p := range c.Parents {
		ids[i] = p.ID
	}
	return ids
}

// WithParents returns a copy of c using parents as its parent list.
func (c *Commit) WithParents(parents []ParentRef) *Commit {
	dup := *c
	dup.Parents = append([]ParentRef(nil), parents...)
	return &dup
}

func (c *Commit) IsStash() bool {
	return c != nil && c.Kind == KindStash
}

func ShortID(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}
	return id[:ShortIDLen]
}

func NewParentRef(id string) ParentRef {
	return ParentRef{ID: id, ShortID: ShortID(id)}
}
