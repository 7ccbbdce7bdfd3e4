package reactloop

import (
	"errors"
	"fmt"
	"strings"
)

// Decode failures are exhaustive and mutually exclusive: exactly one of
// these is returned for any undecodable response.
var (
	ErrMissingEndMarker    = errors.New("end function call marker not found")
	ErrMissingBeginMarker  = errors.New("begin function call marker not found")
	ErrMalformedBlock      = errors.New("malformed function call block: ARG separator without matching VALUE separator")
	ErrMissingFunctionName = errors.New("function name not found in function call block")
)

// Markers are the literal delimiter strings of the call protocol. They are
// configurable but must be unique and stable for a run.
type Markers struct {
	Begin string
	End   string
	Arg   string
	Val   string
}

// DefaultMarkers returns the standard marker set.
func DefaultMarkers() Markers {
	return Markers{
		Begin: "----BEGIN_FUNCTION_CALL----",
		End:   "----END_FUNCTION_CALL----",
		Arg:   "----ARG----",
		Val:   "----VALUE----",
	}
}

// ParsedCall is the decoded form of a single function call extracted from
// raw model output. It is transient and never persisted.
type ParsedCall struct {
	Thought   string
	Name      string
	Arguments map[string]string
}

// Argument is a named argument for encoding a call block.
type Argument struct {
	Name  string
	Value string
}

// Protocol decodes a single structured function call from unstructured
// model output. Decoding is anchored at the tail of the text: the last
// complete call block wins, because the reasoning that precedes it may
// contain marker-like substrings from earlier, abandoned attempts.
type Protocol struct {
	markers Markers
}

// NewProtocol creates a Protocol with the given markers. Empty marker
// fields fall back to the defaults.
func NewProtocol(markers Markers) *Protocol {
	def := DefaultMarkers()
	if markers.Begin == "" {
		markers.Begin = def.Begin
	}
	if markers.End == "" {
		markers.End = def.End
	}
	if markers.Arg == "" {
		markers.Arg = def.Arg
	}
	if markers.Val == "" {
		markers.Val = def.Val
	}
	return &Protocol{markers: markers}
}

// Markers returns the marker set in use.
func (p *Protocol) Markers() Markers {
	return p.markers
}

// StopSequence returns the provider stop sequence for this protocol. It is
// derived from the end marker so the two can never drift apart.
func (p *Protocol) StopSequence() string {
	return p.markers.End
}

// Parse decodes the final call block from text.
//
// The scan walks backward from the last END marker: each iteration consumes
// the rightmost remaining ARG/VALUE pair and shrinks the right boundary to
// that ARG's position. Because later map writes overwrite earlier ones, the
// block closest to BEGIN survives when an argument name repeats.
func (p *Protocol) Parse(text string) (*ParsedCall, error) {
	end := strings.LastIndex(text, p.markers.End)
	if end < 0 {
		return nil, ErrMissingEndMarker
	}

	begin := strings.LastIndex(text[:end], p.markers.Begin)
	if begin < 0 {
		return nil, ErrMissingBeginMarker
	}

	thought := strings.TrimSpace(text[:begin])
	content := begin + len(p.markers.Begin)

	arguments := make(map[string]string)
	right := end
	for {
		argRel := strings.LastIndex(text[content:right], p.markers.Arg)
		if argRel < 0 {
			break
		}
		argIdx := content + argRel
		nameStart := argIdx + len(p.markers.Arg)

		valRel := strings.LastIndex(text[nameStart:right], p.markers.Val)
		if valRel < 0 {
			return nil, ErrMalformedBlock
		}
		valIdx := nameStart + valRel

		name := strings.TrimSpace(text[nameStart:valIdx])
		value := strings.TrimSpace(text[valIdx+len(p.markers.Val) : right])
		arguments[name] = value

		right = argIdx
	}

	// The function name is the first non-blank line between the BEGIN
	// content start and the final right boundary.
	name := ""
	for _, line := range strings.Split(text[content:right], "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			name = trimmed
			break
		}
	}
	if name == "" {
		return nil, ErrMissingFunctionName
	}

	return &ParsedCall{
		Thought:   thought,
		Name:      name,
		Arguments: arguments,
	}, nil
}

// Encode renders a call block for the given function name and arguments.
// Encode followed by Parse yields the same name and argument map.
func (p *Protocol) Encode(name string, args ...Argument) string {
	var sb strings.Builder
	sb.WriteString(p.markers.Begin)
	sb.WriteString("\n")
	sb.WriteString(name)
	sb.WriteString("\n")
	for _, arg := range args {
		sb.WriteString(p.markers.Arg)
		sb.WriteString("\n")
		sb.WriteString(arg.Name)
		sb.WriteString("\n")
		sb.WriteString(p.markers.Val)
		sb.WriteString("\n")
		sb.WriteString(arg.Value)
		sb.WriteString("\n")
	}
	sb.WriteString(p.markers.End)
	return sb.String()
}

// Template returns the human-readable response template. It is embedded
// verbatim in the system block so the model's output is decodable.
func (p *Protocol) Template() string {
	return fmt.Sprintf(`your_thoughts_here
...
%s
function_name
%s
arg1_name
%s
arg1_value (can be multiline)
%s
arg2_name
%s
arg2_value (can be multiline)
...
%s
`, p.markers.Begin, p.markers.Arg, p.markers.Val, p.markers.Arg, p.markers.Val, p.markers.End)
}
