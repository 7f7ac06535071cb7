package resource

// Link relations.
const (
	RelSelf    = "self"
	RelRelated = "related"
)

// LinksKey is the representation key holding the resource's links.
const LinksKey = "_links"

// Link points from a resource to a related URI.
type Link struct {
	Rel string `json:"rel"`
	URI string `json:"uri"`
}

// Representation is the serializable form of a resource: column values keyed
// by column name, plus LinksKey.
type Representation map[string]any

// Links returns the links stored under LinksKey.
func (r Representation) Links() []Link {
	links, _ := r[LinksKey].([]Link)
	return links
}
