package verdict

// Schema defines the field names and data types available to a domain's
// rule conditions. The same names and types must be supplied in the
// context map when rules are evaluated. A domain's schema is registered
// once, before the domain's rules, and is used to type-check every
// condition at registration time.
type Schema struct {
	ID       string        `json:"id,omitempty"`
	Elements []DataElement `json:"elements,omitempty"`
}

// DataElement defines a named field in a schema.
type DataElement struct {
	// Name of the field as referenced in rule conditions. Nested values
	// (lists, maps) are reached with dotted paths from this name.
	Name string `json:"name"`

	// One of the Type implementations below.
	Type Type `json:"type"`

	// Optional description of the field.
	Description string `json:"description,omitempty"`
}

// Type defines a type in the verdict type system. These types are used
// to declare schemas and to interpret evaluation results. The set is
// closed: an evaluator must handle every type here and nothing else.
type Type interface {
	String() string
}

type (
	String    struct{}
	Int       struct{}
	Float     struct{}
	Bool      struct{}
	Any       struct{}
	Duration  struct{}
	Timestamp struct{}

	List struct {
		ValueType Type
	}

	Map struct {
		KeyType   Type
		ValueType Type
	}
)

func (t String) String() string    { return "string" }
func (t Int) String() string       { return "int" }
func (t Float) String() string     { return "float" }
func (t Bool) String() string      { return "bool" }
func (t Any) String() string       { return "any" }
func (t Duration) String() string  { return "duration" }
func (t Timestamp) String() string { return "timestamp" }
func (t List) String() string      { return "list" }
func (t Map) String() string       { return "map" }
