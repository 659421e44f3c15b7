package punch

import "strings"

// Object is a structured key/value annotation extracted from an @key:value
// token in comment text. Values default to the raw string; a per-key
// ValueParser can convert them to richer types.
type Object struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Tag is a #name or #name[param,param] annotation extracted from comment
// text. Params are not further typed.
type Tag struct {
	Name   string   `json:"name"`
	Params []string `json:"params,omitempty"`
}

// Extraction is the result of scanning comment text for annotations.
// Comment holds the text with annotation substrings excised.
type Extraction struct {
	Comment string
	Objects []Object
	Tags    []Tag
}

// ValueParser converts the raw string value of an @key:value token into a
// typed value. Parsers are registered per key; unregistered keys pass the
// string through unchanged.
type ValueParser func(raw string) any

// Extractor scans free text for @key:value objects and #tag[param] tags.
//
// The scan is a single left-to-right pass. Malformed tokens never fail the
// scan; they degrade to plain text and stay in the comment. There is no
// escape character for a literal @ or #.
type Extractor struct {
	parsers map[string]ValueParser
}

// NewExtractor creates an Extractor with no value parsers registered.
func NewExtractor() *Extractor {
	return &Extractor{parsers: make(map[string]ValueParser)}
}

// RegisterParser installs a ValueParser for object values under the given
// key. Registering nil removes a previous parser.
func (e *Extractor) RegisterParser(key string, p ValueParser) {
	if p == nil {
		delete(e.parsers, key)
		return
	}
	e.parsers[key] = p
}

// tag name terminators besides '[' and whitespace
const tagStops = ",;:"

// Extract scans text and returns the plain comment plus any objects and
// tags found. It never returns an error.
func (e *Extractor) Extract(text string) Extraction {
	var (
		out     strings.Builder
		objects []Object
		tags    []Tag
	)

	for i := 0; i < len(text); {
		switch text[i] {
		case '@':
			obj, next, ok := parseObject(text, i)
			if !ok {
				out.WriteByte(text[i])
				i++
				continue
			}
			if p, found := e.parsers[obj.Key]; found {
				obj.Value = p(obj.Value.(string))
			}
			objects = append(objects, obj)
			i = next
		case '#':
			tag, next, ok := parseTag(text, i)
			if !ok {
				out.WriteByte(text[i])
				i++
				continue
			}
			tags = append(tags, tag)
			i = next
		default:
			out.WriteByte(text[i])
			i++
		}
	}

	return Extraction{
		Comment: collapseSpaces(out.String()),
		Objects: objects,
		Tags:    tags,
	}
}

// defaultExtractor backs the package-level Extract used by NewComment.
var defaultExtractor = NewExtractor()

// Extract scans text with the default extractor (string-passthrough values).
func Extract(text string) Extraction {
	return defaultExtractor.Extract(text)
}

// parseObject parses an @key:value token starting at text[i] == '@'.
// The key runs to the first ':', the value from there to the next space or
// end of string. A token with no ':' before the key ends is malformed.
func parseObject(text string, i int) (Object, int, bool) {
	j := i + 1
	keyEnd := -1
	for ; j < len(text) && text[j] != ' '; j++ {
		if text[j] == ':' {
			keyEnd = j
			break
		}
	}
	if keyEnd < 0 || keyEnd == i+1 {
		return Object{}, 0, false
	}

	valEnd := keyEnd + 1
	for valEnd < len(text) && text[valEnd] != ' ' {
		valEnd++
	}

	return Object{
		Key:   text[i+1 : keyEnd],
		Value: text[keyEnd+1 : valEnd],
	}, valEnd, true
}

// parseTag parses a #name or #name[a,b,c] token starting at text[i] == '#'.
// The name runs to the next space, ',', ';', ':' or '['. An opening '[' with
// no matching ']' makes the whole token malformed.
func parseTag(text string, i int) (Tag, int, bool) {
	j := i + 1
	for j < len(text) && text[j] != ' ' && text[j] != '[' && !strings.ContainsRune(tagStops, rune(text[j])) {
		j++
	}
	if j == i+1 {
		return Tag{}, 0, false
	}
	tag := Tag{Name: text[i+1 : j]}

	if j < len(text) && text[j] == '[' {
		end := strings.IndexByte(text[j:], ']')
		if end < 0 {
			return Tag{}, 0, false
		}
		list := text[j+1 : j+end]
		if list != "" {
			tag.Params = strings.Split(list, ",")
		}
		j += end + 1
	}

	return tag, j, true
}

// collapseSpaces trims outer whitespace and squeezes the runs of spaces
// left behind by excised annotation tokens. Newlines are preserved.
func collapseSpaces(s string) string {
	var out strings.Builder
	prevSpace := false
	for _, r := range s {
		if r == ' ' {
			prevSpace = true
			continue
		}
		if prevSpace && out.Len() > 0 && r != '\n' {
			out.WriteByte(' ')
		}
		prevSpace = false
		out.WriteRune(r)
	}
	return strings.TrimSpace(out.String())
}
