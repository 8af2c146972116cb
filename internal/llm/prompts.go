package llm

import (
	_ "embed"
	"strings"

	"applypilot-backend/internal/recipients"
)

//go:embed prompts/cover_letter_v1.txt
var coverLetterV1 string

// CoverLetterPromptVersion identifies the embedded template in logs.
const CoverLetterPromptVersion = "cover_letter_v1"

// CoverLetterPrompt fills the cover letter template for one recipient. An
// empty resumeText is allowed and leaves the resume section blank.
func CoverLetterPrompt(resumeText string, r recipients.Record) string {
	return strings.NewReplacer(
		"{{RESUME_TEXT}}", strings.TrimSpace(resumeText),
		"{{RECIPIENT_NAME}}", r.Name,
		"{{COMPANY}}", r.Company,
		"{{JOB_TITLE}}", r.JobTitle,
	).Replace(coverLetterV1)
}
