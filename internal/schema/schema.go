// Package schema holds the closed value sets shared by every layer of the
// scorecard: statuses, quarters, node types and alignment strengths.
package schema

import "strings"

type Status string

const (
	StatusUnset    Status = ""
	StatusExceeded Status = "exceeded"
	StatusOnTrack  Status = "on-track"
	StatusDelayed  Status = "delayed"
	StatusMissed   Status = "missed"
)

var Statuses = []Status{StatusExceeded, StatusOnTrack, StatusDelayed, StatusMissed}

// ParseStatus accepts a canonical status in any case. The empty string is a
// valid value and clears the status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == StatusUnset {
		return StatusUnset, true
	}
	for _, status := range Statuses {
		if status == normalized {
			return status, true
		}
	}
	return StatusUnset, false
}

var bragToStatus = map[string]Status{
	"green": StatusOnTrack,
	"blue":  StatusExceeded,
	"amber": StatusDelayed,
	"red":   StatusMissed,
}

var statusToBRAG = map[Status]string{
	StatusOnTrack:  "Green",
	StatusExceeded: "Blue",
	StatusDelayed:  "Amber",
	StatusMissed:   "Red",
}

// MapStatus converts a BRAG colour (Green, Blue, Amber, Red in any case) to its
// status. ok is false for empty input and for anything that is not a colour.
func MapStatus(brag string) (Status, bool) {
	status, ok := bragToStatus[strings.ToLower(strings.TrimSpace(brag))]
	return status, ok
}

// BRAG is the inverse of MapStatus; unset statuses render as "".
func BRAG(status Status) string {
	return statusToBRAG[status]
}

type Quarter string

const (
	Q1 Quarter = "q1"
	Q2 Quarter = "q2"
	Q3 Quarter = "q3"
	Q4 Quarter = "q4"
)

var Quarters = []Quarter{Q1, Q2, Q3, Q4}

func ParseQuarter(value string) (Quarter, bool) {
	normalized := Quarter(strings.ToLower(strings.TrimSpace(value)))
	for _, quarter := range Quarters {
		if quarter == normalized {
			return quarter, true
		}
	}
	return "", false
}

// Quarterly holds one value per quarter.
type Quarterly struct {
	Q1 string `json:"q1"`
	Q2 string `json:"q2"`
	Q3 string `json:"q3"`
	Q4 string `json:"q4"`
}

func (q Quarterly) Get(quarter Quarter) string {
	switch quarter {
	case Q1:
		return q.Q1
	case Q2:
		return q.Q2
	case Q3:
		return q.Q3
	case Q4:
		return q.Q4
	default:
		return ""
	}
}

func (q *Quarterly) Set(quarter Quarter, value string) {
	switch quarter {
	case Q1:
		q.Q1 = value
	case Q2:
		q.Q2 = value
	case Q3:
		q.Q3 = value
	case Q4:
		q.Q4 = value
	}
}

type NodeType string

const (
	NodePillar   NodeType = "pillar"
	NodeCategory NodeType = "category"
	NodeGoal     NodeType = "goal"
	NodeProgram  NodeType = "program"
)

var NodeTypes = []NodeType{NodePillar, NodeCategory, NodeGoal, NodeProgram}

func ParseNodeType(value string) (NodeType, bool) {
	normalized := NodeType(strings.ToLower(strings.TrimSpace(value)))
	for _, nodeType := range NodeTypes {
		if nodeType == normalized {
			return nodeType, true
		}
	}
	return "", false
}

type Strength string

const (
	StrengthStrong        Strength = "strong"
	StrengthModerate      Strength = "moderate"
	StrengthWeak          Strength = "weak"
	StrengthInformational Strength = "informational"
)

var Strengths = []Strength{StrengthStrong, StrengthModerate, StrengthWeak, StrengthInformational}

func ParseStrength(value string) (Strength, bool) {
	normalized := Strength(strings.ToLower(strings.TrimSpace(value)))
	for _, strength := range Strengths {
		if strength == normalized {
			return strength, true
		}
	}
	return "", false
}

// OrdFunction is the function name of the organization-wide hierarchy. Pillars
// carrying any other function belong to a functional hierarchy.
const OrdFunction = "ORD"

func IsOrd(function string) bool {
	return strings.EqualFold(strings.TrimSpace(function), OrdFunction)
}
