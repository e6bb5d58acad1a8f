package agent

import (
	"errors"
	"strings"
)

// ErrClassificationRejected is returned when the model answers the project
// type question with anything but "react" or "node".
var ErrClassificationRejected = errors.New("project type rejected")

// ProjectType selects the boilerplate a project starts from.
type ProjectType string

const (
	React ProjectType = "react"
	Node  ProjectType = "node"
)

func (pt ProjectType) Valid() bool {
	return pt == React || pt == Node
}

// ParseProjectType accepts exactly "react" or "node", ignoring case and
// surrounding whitespace.
func ParseProjectType(answer string) (ProjectType, error) {
	pt := ProjectType(strings.ToLower(strings.TrimSpace(answer)))
	if !pt.Valid() {
		return "", ErrClassificationRejected
	}
	return pt, nil
}
