package types

// Document is the validated configuration tree handed to the engine.
type Document struct {
	Version int
	App     App
	Runtime Runtime

	// Vars keeps declaration order; resolution depends on it.
	Vars []Variable

	// Actions in document order.
	Actions []*Action

	// Path is the file the document was loaded from, if any.
	Path string
}

// Action returns the action with the given id, or nil.
func (d *Document) Action(id string) *Action {
	for _, a := range d.Actions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// ActionIDs lists action ids in document order.
func (d *Document) ActionIDs() []string {
	ids := make([]string, len(d.Actions))
	for i, a := range d.Actions {
		ids[i] = a.ID
	}
	return ids
}

// App holds application-level defaults.
type App struct {
	Title   string
	Shell   bool
	Workdir Value
	Env     *Map
}

// Runtime holds interpreter overrides.
type Runtime struct {
	// PythonExecutable replaces a run program that renders exactly to "python".
	PythonExecutable Value
}

// Variable is one entry of the vars section.
type Variable struct {
	Name string

	// Raw is the literal value or the `default` of the extended form.
	Raw Value

	// Type is the declared type for the extended form, "" otherwise.
	Type string

	// Meta keeps the full extended declaration (nil for literals).
	Meta *Map
}

// Action is a named, user-triggerable pipeline.
type Action struct {
	ID      string
	Title   string
	Info    string
	Form    *Form
	Workdir Value
	Env     *Map

	Pipeline []*Step

	// OnError steps run after the pipeline aborts.
	OnError []*Step
}

// Form lists the input fields of an action.
type Form struct {
	Fields []*Field
}

// Field returns the field with the given id, or nil.
func (f *Form) Field(id string) *Field {
	if f == nil {
		return nil
	}
	for _, fd := range f.Fields {
		if fd.ID == id {
			return fd
		}
	}
	return nil
}

// FieldType enumerates form field types.
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldText        FieldType = "text"
	FieldPath        FieldType = "path"
	FieldBool        FieldType = "bool"
	FieldTriBool     FieldType = "tri_bool"
	FieldChoice      FieldType = "choice"
	FieldMultiChoice FieldType = "multichoice"
	FieldInt         FieldType = "int"
	FieldFloat       FieldType = "float"
	FieldSecret      FieldType = "secret"
	FieldKVList      FieldType = "kv_list"
	FieldStructList  FieldType = "struct_list"
)

// Valid returns true if this is a recognized field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldText, FieldPath, FieldBool, FieldTriBool, FieldChoice,
		FieldMultiChoice, FieldInt, FieldFloat, FieldSecret, FieldKVList, FieldStructList:
		return true
	}
	return false
}

// Field is one form input.
type Field struct {
	ID       string
	Label    string
	Type     FieldType
	Required bool
	Default  Value
	Options  []string

	// Numeric bounds (int/float); nil when unset.
	Min *float64
	Max *float64

	// Path fields.
	MustExist bool
	Kind      string // file | dir | ""

	// Secret fields.
	Source string // inline | env
	EnvVar string

	// ItemSchema describes struct_list entries.
	ItemSchema []*Field
}

// StepKind tells which body a step carries.
type StepKind string

const (
	StepRun      StepKind = "run"
	StepPipeline StepKind = "pipeline"
	StepForeach  StepKind = "foreach"
)

// Step is one unit of work. Exactly one of Run, Pipeline, Foreach is set,
// matching Kind.
type Step struct {
	ID              string
	When            Value
	HasWhen         bool
	ContinueOnError bool

	Kind     StepKind
	Run      *RunSpec
	Pipeline []*Step
	Foreach  *ForeachSpec
}

// ForeachSpec iterates a sequence.
type ForeachSpec struct {
	In    Value
	As    string
	Steps []*Step
}

// StreamMode routes one output stream of a run step.
type StreamMode string

const (
	StreamCapture StreamMode = "capture"
	StreamInherit StreamMode = "inherit"
)

// StreamTarget is a parsed stdout/stderr routing.
type StreamTarget struct {
	Mode StreamMode
	// Path is set for file routing (mode capture + write).
	Path string
}

// IsFile reports whether the stream is written to a file.
func (t StreamTarget) IsFile() bool { return t.Path != "" }

// RunSpec describes a process invocation.
type RunSpec struct {
	Program   Value
	Argv      []ArgItem
	Workdir   Value
	Env       *Map
	Shell     *bool
	TimeoutMS int
	Stdout    StreamTarget
	Stderr    StreamTarget
}

// ArgKind tags ArgItem variants.
type ArgKind uint8

const (
	ArgString ArgKind = iota
	ArgShort
	ArgOption
)

// ArgItem is one declared argv element.
type ArgItem struct {
	Kind ArgKind

	// Text is the literal-or-template of a String item.
	Text Value

	// Flag and Value form a ShortMap item.
	Flag  string
	Value Value

	// Option is set for ExtendedOption items.
	Option *OptionSpec
}

// OptionSpec is the extended argv item form.
type OptionSpec struct {
	Opt         string
	HasOpt      bool
	From        Value
	Mode        string
	Style       string
	Joiner      string
	OmitIfEmpty bool
	Template    string
	FalseOpt    string
	When        Value
	HasWhen     bool

	// Unknown collects keys not understood by the serializer.
	Unknown []string
}
