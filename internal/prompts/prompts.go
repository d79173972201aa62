// Package prompts renders the embedded interview and evaluation templates.
package prompts

import (
	_ "embed"
	"strconv"
	"strings"

	"github.com/spigell/hr-interview-bot/internal/hr"
)

var (
	//go:embed interviewer.md
	interviewerTemplate string
	//go:embed format.md
	formatTemplate string
	//go:embed greeting.md
	greetingTemplate string
	//go:embed evaluator.md
	evaluatorTemplate string
	//go:embed farewell.md
	farewellTemplate string
)

// TurnFormat describes the structured reply expected on every interview turn.
const TurnFormat = `The output must be a JSON object conforming to this schema:
{"type": "object", "properties": {"question": {"type": "string", "description": "The next question or closing remark for the candidate."}, "finished": {"type": "boolean", "description": "Indicates that the interview is finished."}}, "required": ["question", "finished"]}

Example: {"question": "Tell me about your last project.", "finished": false}`

// SubmitMarks closes the evaluation context so the model answers with the tool call.
const SubmitMarks = "The interview is over. Submit the scores now by calling set_marks."

const defaultMaxScore = 10

type Composer struct {
	maxScore int
}

func NewComposer(maxScore int) *Composer {
	if maxScore <= 0 {
		maxScore = defaultMaxScore
	}
	return &Composer{maxScore: maxScore}
}

func (c *Composer) MaxScore() int {
	return c.maxScore
}

// Interviewer returns the system prompt placed before the conversation.
func (c *Composer) Interviewer(requirements []hr.Requirement, resume string) string {
	return render(interviewerTemplate,
		"{{REQUIREMENTS}}", FormatRequirements(requirements),
		"{{RESUME}}", strings.TrimSpace(resume),
	)
}

// Closing returns the system prompt placed after the conversation.
func (c *Composer) Closing() string {
	return render(formatTemplate, "{{FORMAT_INSTRUCTIONS}}", TurnFormat)
}

// Greeting returns the opening instruction of a new session.
func (c *Composer) Greeting(name string) string {
	return render(greetingTemplate, "{{NAME}}", displayName(name))
}

func (c *Composer) Evaluator(requirements []hr.Requirement, resume string) string {
	return render(evaluatorTemplate,
		"{{REQUIREMENTS}}", FormatRequirements(requirements),
		"{{RESUME}}", strings.TrimSpace(resume),
		"{{MAX_SCORE}}", strconv.Itoa(c.maxScore),
	)
}

// Farewell is the closing remark used when the interview is ended without the model.
func (c *Composer) Farewell(name string) string {
	return render(farewellTemplate, "{{NAME}}", displayName(name))
}

// FormatRequirements renders one "* name : description" line per requirement.
func FormatRequirements(requirements []hr.Requirement) string {
	lines := make([]string, 0, len(requirements))
	for _, r := range requirements {
		lines = append(lines, "* "+strings.TrimSpace(r.Name)+" : "+strings.TrimSpace(r.Description))
	}
	return strings.Join(lines, "\n")
}

func displayName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "candidate"
	}
	return name
}

func render(template string, oldnew ...string) string {
	return strings.TrimSpace(strings.NewReplacer(oldnew...).Replace(template))
}
