// Package sarif holds the subset of SARIF 2.1.0 the run reports use.
// Optional fields are pointers; required fields are values.
package sarif

const (
	Version = "2.1.0"
	Schema  = "https://json.schemastore.org/sarif-2.1.0.json"
)

type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []*Run `json:"runs"`
}

type Run struct {
	Tool              *Tool              `json:"tool"`
	AutomationDetails *AutomationDetails `json:"automationDetails,omitempty"`
	Results           []*Result          `json:"results"`
}

type Tool struct {
	Driver *ToolComponent `json:"driver"`
}

type ToolComponent struct {
	Name           string                 `json:"name"`
	Version        *string                `json:"version,omitempty"`
	InformationURI *string                `json:"informationUri,omitempty"`
	Rules          []*ReportingDescriptor `json:"rules,omitempty"`
}

// AutomationDetails identifies one run of a suite.
type AutomationDetails struct {
	ID   string `json:"id"`
	GUID string `json:"guid,omitempty"`
}

type ReportingDescriptor struct {
	ID               string                    `json:"id"`
	Name             *string                   `json:"name,omitempty"`
	ShortDescription *MultiformatMessageString `json:"shortDescription,omitempty"`
	Help             *MultiformatMessageString `json:"help,omitempty"`
}

type Result struct {
	RuleID     string      `json:"ruleId"`
	Message    *Message    `json:"message"`
	Level      Level       `json:"level,omitempty"`
	Locations  []*Location `json:"locations,omitempty"`
	Properties PropertyBag `json:"properties,omitempty"`
}

type Location struct {
	PhysicalLocation *PhysicalLocation `json:"physicalLocation,omitempty"`
	Message          *Message          `json:"message,omitempty"`
}

type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation,omitempty"`
}

type ArtifactLocation struct {
	URI *string `json:"uri,omitempty"`
}

type Message struct {
	Text *string `json:"text,omitempty"`
}

type MultiformatMessageString struct {
	Text     *string `json:"text"`
	Markdown *string `json:"markdown,omitempty"`
}

type PropertyBag map[string]interface{}

type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNote    Level = "note"
)
