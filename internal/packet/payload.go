// Package packet models the payload part of XBee API frames: one variant per
// frame type, each able to validate, serialize and describe itself.
package packet

// Payload is implemented by every packet variant in this package. The set is
// closed: Unmarshal and callers switch over the concrete types.
type Payload interface {
	FrameType() FrameType
	// Body returns the frame-type specific bytes without the tag and
	// without any envelope bytes.
	Body() []byte
	// NeedsFrameID reports whether the device answers with a response frame
	// correlated by frame ID.
	NeedsFrameID() bool
	// Fields returns the diagnostic breakdown. A nil classifier treats every
	// command as binary valued.
	Fields(c CommandClassifier) Fields

	sealed()
}

// CommandClassifier tells whether an AT command carries a text parameter.
// It only affects diagnostics.
type CommandClassifier interface {
	IsStringValued(command string) bool
}

// ClassifierFunc adapts a plain function to CommandClassifier.
type ClassifierFunc func(command string) bool

func (f ClassifierFunc) IsStringValued(command string) bool {
	return f(command)
}

func isStringValued(c CommandClassifier, command string) bool {
	if c == nil {
		return false
	}
	return c.IsStringValued(command)
}

// Field is one labelled entry of a packet breakdown.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Fields is an insertion-ordered label/value list.
type Fields []Field

func (f Fields) Get(label string) (string, bool) {
	for _, field := range f {
		if field.Label == label {
			return field.Value, true
		}
	}
	return "", false
}

func (f Fields) Labels() []string {
	labels := make([]string, 0, len(f))
	for _, field := range f {
		labels = append(labels, field.Label)
	}
	return labels
}

// Map flattens the breakdown for structured sinks that do not keep order.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(f))
	for _, field := range f {
		out[field.Label] = field.Value
	}
	return out
}

// Marshal returns the frame data for p: the frame-type tag followed by the
// body. This is what the API frame envelope wraps.
func Marshal(p Payload) []byte {
	body := p.Body()
	data := make([]byte, 0, 1+len(body))
	data = append(data, byte(p.FrameType()))
	return append(data, body...)
}
