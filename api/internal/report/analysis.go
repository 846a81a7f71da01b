package report

import (
	"github.com/google/jsonschema-go/jsonschema"

	"parent-bridge/api/internal/llm"
)

// HomeworkAnalysis is the demo analysis returned by GET /vision.
type HomeworkAnalysis struct {
	AssignmentSummary   string `json:"assignment_summary" jsonschema:"What the pages ask the student to do."`
	Strengths           string `json:"strengths" jsonschema:"What the student did well."`
	AreasForImprovement string `json:"areas_for_improvement" jsonschema:"Where the student should practise more."`
}

const AnalysisPrompt = "These are photos of one student's homework from the last three weeks. " +
	"Summarise the assignments, the student's strengths, and the areas for improvement."

// AnalysisSchema is the HomeworkAnalysis schema definition.
func AnalysisSchema() (*llm.SchemaDefinition, error) {
	s, err := jsonschema.For[HomeworkAnalysis](nil)
	if err != nil {
		return nil, err
	}
	return &llm.SchemaDefinition{
		Name:        "HomeworkAnalysis",
		Description: "Analysis of a student's homework pages.",
		Schema:      s,
	}, nil
}
