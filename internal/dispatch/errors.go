package dispatch

import "errors"

var (
	ErrNoResume     = errors.New("please upload your resume first")
	ErrNoRecipients = errors.New("please upload a recipient spreadsheet first")
)
