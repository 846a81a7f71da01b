// Package report holds the parent report contract: the request metadata,
// the prompt template, the JSON schemas handed to the model and the
// validation applied to the model's reply.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/jsonschema-go/jsonschema"

	"parent-bridge/api/internal/llm"
	"parent-bridge/api/internal/util"
)

const DefaultLanguage = "Spanish"

// Metadata is echoed back by the model inside every report.
type Metadata struct {
	Grade           string `json:"grade"`
	TeacherName     string `json:"teacher_name"`
	ParentName      string `json:"parent_name"`
	ChildName       string `json:"child_name"`
	DocumentType    string `json:"document_type"`
	DocumentPurpose string `json:"document_purpose"`
}

// Request is the POST /vision body.
type Request struct {
	Language string `json:"language"`
	Metadata
}

// LanguageOrDefault returns the trimmed language, Spanish when empty.
func (r Request) LanguageOrDefault() string {
	if l := strings.TrimSpace(r.Language); l != "" {
		return l
	}
	return DefaultLanguage
}

func (r Request) Validate() error {
	if l := strings.TrimSpace(r.Language); l != "" && util.SnakeKey(l) == "" {
		return errors.New(`"language" must contain letters`)
	}
	return nil
}

// TargetKey is the JSON key of the target-language report, e.g. report_in_spanish.
func TargetKey(language string) string {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return "report_in_" + util.SnakeKey(language)
}

// Payload is a decoded report. ReportInTarget is read from the report_in_<language> key.
type Payload struct {
	Language          string   `json:"-"`
	ReportInEnglish   string   `json:"report_in_english"`
	ReportInTarget    string   `json:"-"`
	FollowUpQuestions string   `json:"follow_up_questions"`
	Metadata          Metadata `json:"metadata"`
}

// ErrContract marks a reply that does not carry every required field.
var ErrContract = errors.New("report contract violation")

// Decode parses and validates a report body for the given language. A
// missing top-level or metadata field is an ErrContract.
func Decode(body []byte, language string) (Payload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: not a JSON object: %v", ErrContract, err)
	}
	targetKey := TargetKey(language)
	var missing []string
	str := func(key string) string {
		v, ok := raw[key]
		if !ok {
			missing = append(missing, key)
			return ""
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			missing = append(missing, key)
		}
		return s
	}
	p := Payload{Language: language}
	p.ReportInEnglish = str("report_in_english")
	p.ReportInTarget = str(targetKey)
	p.FollowUpQuestions = str("follow_up_questions")

	metaRaw, ok := raw["metadata"]
	if !ok {
		missing = append(missing, "metadata")
	} else {
		var meta map[string]json.RawMessage
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			missing = append(missing, "metadata")
		} else {
			for _, f := range metadataFields {
				v, ok := meta[f]
				if !ok {
					missing = append(missing, "metadata."+f)
					continue
				}
				var s string
				if err := json.Unmarshal(v, &s); err != nil {
					missing = append(missing, "metadata."+f)
					continue
				}
				p.Metadata.set(f, s)
			}
		}
	}
	if len(missing) > 0 {
		return Payload{}, fmt.Errorf("%w: missing or non-string %s", ErrContract, strings.Join(missing, ", "))
	}
	return p, nil
}

// MarshalJSON writes the report with its language-specific key.
func (p Payload) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"report_in_english":   p.ReportInEnglish,
		TargetKey(p.Language): p.ReportInTarget,
		"follow_up_questions": p.FollowUpQuestions,
		"metadata":            p.Metadata,
	}
	return json.Marshal(m)
}

var metadataFields = []string{"grade", "teacher_name", "parent_name", "child_name", "document_type", "document_purpose"}

func (m *Metadata) set(field, v string) {
	switch field {
	case "grade":
		m.Grade = v
	case "teacher_name":
		m.TeacherName = v
	case "parent_name":
		m.ParentName = v
	case "child_name":
		m.ChildName = v
	case "document_type":
		m.DocumentType = v
	case "document_purpose":
		m.DocumentPurpose = v
	}
}

func stringProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

// Schema is the named report schema for the given language.
func Schema(language string) *llm.SchemaDefinition {
	lang := language
	if strings.TrimSpace(lang) == "" {
		lang = DefaultLanguage
	}
	targetKey := TargetKey(lang)
	meta := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
		Required:   metadataFields,
	}
	for _, f := range metadataFields {
		meta.Properties[f] = stringProp("Echo of the " + strings.ReplaceAll(f, "_", " ") + " supplied in the request.")
	}
	return &llm.SchemaDefinition{
		Name:        "ParentReport",
		Description: "A report for a parent about their child's homework, in English and " + lang + ".",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"report_in_english":   stringProp("The report written in English."),
				targetKey:             stringProp("The same report written in " + lang + "."),
				"follow_up_questions": stringProp("Questions the parent can ask the child, in " + lang + "."),
				"metadata":            meta,
			},
			Required: []string{"report_in_english", targetKey, "follow_up_questions", "metadata"},
		},
	}
}

var promptTmpl = template.Must(template.New("report").Parse(
	`You are helping {{.TeacherName}}, a teacher, write to {{.ParentName}}, the parent of {{.ChildName}}, a student in grade {{.Grade}}.
The attached images show a {{.DocumentType}}. Its purpose: {{.DocumentPurpose}}.
Look at every image and write a short, warm report for the parent that explains what the {{.DocumentType}} covers, how {{.ChildName}} did, and how the parent can help at home.
Write the report once in English (report_in_english) and once in {{.Language}} ({{.TargetKey}}).
Add three follow-up questions in {{.Language}} the parent can ask {{.ChildName}} (follow_up_questions), one per line.
Copy grade, teacher_name, parent_name, child_name, document_type and document_purpose into metadata exactly as given.
Return only JSON.`))

// Prompt interpolates the request metadata into the report instruction.
func Prompt(r Request) (string, error) {
	lang := r.LanguageOrDefault()
	data := struct {
		Metadata
		Language  string
		TargetKey string
	}{r.Metadata, lang, TargetKey(lang)}
	var b bytes.Buffer
	if err := promptTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
