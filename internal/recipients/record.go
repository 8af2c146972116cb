package recipients

import "strings"

// Column headers a recipient spreadsheet must carry, in canonical order.
const (
	ColumnName     = "Name"
	ColumnEmail    = "Email"
	ColumnCompany  = "Company"
	ColumnJobTitle = "JobTitle"
)

var columns = []string{ColumnName, ColumnEmail, ColumnCompany, ColumnJobTitle}

// Record is one validated spreadsheet row. Email is not format-checked.
type Record struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	JobTitle string `json:"jobTitle"`
}

// missing lists the required columns left empty, in canonical order.
func (r Record) missing() []string {
	var out []string
	for i, v := range []string{r.Name, r.Email, r.Company, r.JobTitle} {
		if strings.TrimSpace(v) == "" {
			out = append(out, columns[i])
		}
	}
	return out
}
