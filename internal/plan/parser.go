package plan

import (
	"html"
	"strings"
)

const (
	ArtifactTag = "boltArtifact"
	ActionTag   = "boltAction"

	// DefaultTitle labels the leading step when the artifact has no title.
	DefaultTitle = "Project Files"

	fallbackTitle = "File operation"
)

// Parser assigns increasing step ids across successive plans. A zero
// Parser starts numbering at 1.
type Parser struct {
	next int
}

// NewParser returns a parser whose first step gets id next.
func NewParser(next int) *Parser {
	if next < 1 {
		next = 1
	}
	return &Parser{next: next}
}

// NextID returns the id the next parsed step will receive.
func (p *Parser) NextID() int {
	if p.next < 1 {
		return 1
	}
	return p.next
}

func (p *Parser) take() int {
	id := p.NextID()
	p.next = id + 1
	return id
}

// Parse is shorthand for NewParser(1).Parse(text).
func Parse(text string) []Step {
	return NewParser(1).Parse(text)
}

// Parse extracts the steps of the single artifact in text. Without an
// artifact the result is empty. Otherwise the first step is a synthesized
// info step titled after the artifact, followed by one step per well-formed
// action in document order. Malformed actions are skipped.
func (p *Parser) Parse(text string) []Step {
	region, attrs, ok := artifactRegion(text)
	if !ok {
		return nil
	}

	title := attrs["title"]
	if title == "" {
		title = DefaultTitle
	}
	steps := []Step{{
		ID:     p.take(),
		Kind:   KindInfo,
		Title:  title,
		Status: StatusPending,
	}}

	sc := &scanner{src: region}
	for {
		a, ok := sc.next()
		if !ok {
			break
		}
		steps = append(steps, p.build(a))
	}
	return steps
}

func (p *Parser) build(a action) Step {
	s := Step{
		ID:          p.take(),
		Description: a.prose,
		Status:      StatusPending,
	}
	title := a.attr("title", "purpose")

	switch strings.ToLower(a.attr("type")) {
	case "file":
		s.Kind = KindCreateFile
		s.Path = a.attr("filepath", "path", "file")
		s.Code = strings.TrimSpace(a.body)
		if title == "" {
			title = "Create file"
			if s.Path != "" {
				title = "Create " + s.Path
			}
		}
	case "shell":
		s.Kind = KindRunScript
		s.Command = strings.TrimSpace(a.body)
		if title == "" {
			title = "Run command"
		}
	default:
		s.Kind = KindInfo
		if title == "" {
			title = fallbackTitle
		}
	}
	s.Title = title
	return s
}

// artifactRegion returns the inner text of the first artifact element. An
// artifact that is opened but never closed extends to the end of text so
// that a truncated response still yields its complete actions.
func artifactRegion(text string) (string, map[string]string, bool) {
	start := indexTag(text, 0, ArtifactTag)
	if start < 0 {
		return "", nil, false
	}
	tag, ok := readOpenTag(text, start+1+len(ArtifactTag))
	if !ok {
		return "", nil, false
	}
	if tag.selfClosing {
		return "", tag.attrs, true
	}
	closing := "</" + ArtifactTag + ">"
	end := strings.Index(text[tag.end:], closing)
	if end < 0 {
		return text[tag.end:], tag.attrs, true
	}
	return text[tag.end : tag.end+end], tag.attrs, true
}

// indexTag finds "<name" at or after from where name is followed by a tag
// delimiter, so "<boltActions" does not match "boltAction".
func indexTag(src string, from int, name string) int {
	open := "<" + name
	for from <= len(src) {
		i := strings.Index(src[from:], open)
		if i < 0 {
			return -1
		}
		i += from
		after := i + len(open)
		if after >= len(src) {
			return i
		}
		switch src[after] {
		case ' ', '\t', '\n', '\r', '>', '/':
			return i
		}
		from = after
	}
	return -1
}

type action struct {
	attrs map[string]string
	body  string
	prose string
}

// attr returns the first non-empty attribute among names.
func (a action) attr(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(a.attrs[n]); v != "" {
			return v
		}
	}
	return ""
}

// scanner walks an artifact region one action at a time.
type scanner struct {
	src  string
	pos  int
	last int // end of the previous accepted action
}

func (s *scanner) next() (action, bool) {
	closing := "</" + ActionTag + ">"
	for {
		start := indexTag(s.src, s.pos, ActionTag)
		if start < 0 {
			return action{}, false
		}
		tag, ok := readOpenTag(s.src, start+1+len(ActionTag))
		if !ok {
			if tag.resume <= start {
				return action{}, false
			}
			s.pos, s.last = tag.resume, tag.resume
			continue
		}

		prose := strings.TrimSpace(s.src[s.last:start])
		if tag.selfClosing {
			s.pos, s.last = tag.end, tag.end
			return action{attrs: tag.attrs, prose: prose}, true
		}

		end := strings.Index(s.src[tag.end:], closing)
		if end < 0 {
			return action{}, false
		}
		end += tag.end

		// An action opened before this one closes means this one lost its
		// closing tag; drop it and resume at the inner action.
		if inner := indexTag(s.src, tag.end, ActionTag); inner >= 0 && inner < end {
			s.pos, s.last = inner, inner
			continue
		}

		after := end + len(closing)
		s.pos, s.last = after, after
		return action{attrs: tag.attrs, body: s.src[tag.end:end], prose: prose}, true
	}
}

type openTag struct {
	attrs       map[string]string
	end         int // index just past '>'
	selfClosing bool
	resume      int // where to continue scanning when the tag is malformed
}

const (
	stBetween = iota
	stName
	stAfterName
	stBeforeValue
	stQuoted
	stUnquoted
)

// readOpenTag parses attributes starting right after the tag name up to
// the closing '>'. Attribute names are lower-cased; values may be single,
// double or un-quoted. A '<' outside quotes or the end of input marks the
// tag as malformed.
func readOpenTag(src string, i int) (openTag, bool) {
	tag := openTag{attrs: map[string]string{}}
	state := stBetween
	var name, value strings.Builder
	var quote byte

	flush := func() {
		if name.Len() > 0 {
			tag.attrs[strings.ToLower(name.String())] = html.UnescapeString(value.String())
		}
		name.Reset()
		value.Reset()
	}

	for ; i < len(src); i++ {
		c := src[i]
		switch state {
		case stQuoted:
			if c == quote {
				flush()
				state = stBetween
			} else {
				value.WriteByte(c)
			}
			continue
		case stUnquoted:
			if isSpace(c) || c == '>' || c == '<' {
				flush()
				state = stBetween
				if isSpace(c) {
					continue
				}
			} else {
				value.WriteByte(c)
				continue
			}
		}

		switch {
		case c == '<':
			tag.resume = i
			return tag, false
		case c == '>':
			if state == stName || state == stAfterName || state == stBeforeValue {
				flush()
			}
			tag.end = i + 1
			tag.selfClosing = i > 0 && src[i-1] == '/'
			return tag, true
		}

		switch state {
		case stBetween:
			if !isSpace(c) && c != '/' {
				name.WriteByte(c)
				state = stName
			}
		case stName:
			switch {
			case c == '=':
				state = stBeforeValue
			case isSpace(c):
				state = stAfterName
			case c == '/':
				flush()
				state = stBetween
			default:
				name.WriteByte(c)
			}
		case stAfterName:
			switch {
			case c == '=':
				state = stBeforeValue
			case isSpace(c):
			default:
				flush()
				name.WriteByte(c)
				state = stName
			}
		case stBeforeValue:
			switch {
			case c == '"' || c == '\'':
				quote = c
				state = stQuoted
			case isSpace(c):
			default:
				value.WriteByte(c)
				state = stUnquoted
			}
		}
	}
	tag.resume = len(src)
	return tag, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
