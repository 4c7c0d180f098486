package internal

import (
	"fmt"
	"sort"

	"github.com/AlecAivazis/survey/v2"
)

// TableSelector handles interactive selection of tables from the clone plan.
type TableSelector struct {
	tables []string
}

func NewTableSelector(tables []string) *TableSelector {
	sortedTables := make([]string, len(tables))
	copy(sortedTables, tables)
	sort.Strings(sortedTables)

	return &TableSelector{
		tables: sortedTables,
	}
}

// SelectTables presents a checkbox selection interface and returns the
// chosen tables. The caller re-orders them by dependency before cloning.
func (ts *TableSelector) SelectTables() ([]string, error) {
	if len(ts.tables) == 0 {
		return nil, fmt.Errorf("no tables available for selection")
	}

	fmt.Printf("\n📋 %d table(s) available for cloning.\n", len(ts.tables))
	fmt.Println("Use ↑/↓ to navigate, SPACE to select/deselect, ENTER to confirm")

	var selectedTables []string

	prompt := &survey.MultiSelect{
		Message:  "Select tables to clone:",
		Options:  ts.tables,
		PageSize: 15,
	}

	err := survey.AskOne(prompt, &selectedTables, survey.WithPageSize(15))
	if err != nil {
		if err.Error() == "interrupt" {
			return nil, fmt.Errorf("selection cancelled by user")
		}
		return nil, fmt.Errorf("selection error: %w", err)
	}

	if len(selectedTables) == 0 {
		return nil, fmt.Errorf("no tables selected")
	}

	var confirm bool
	confirmPrompt := &survey.Confirm{
		Message: fmt.Sprintf("Proceed with cloning %d selected table(s)?", len(selectedTables)),
		Default: true,
	}

	err = survey.AskOne(confirmPrompt, &confirm)
	if err != nil {
		return nil, fmt.Errorf("confirmation error: %w", err)
	}

	if !confirm {
		return nil, fmt.Errorf("operation cancelled by user")
	}

	return selectedTables, nil
}
