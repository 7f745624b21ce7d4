package settings

import (
	"fmt"
	"strings"

	"github.com/runger/bikeshare/internal/sheet"
)

// ColumnType declares how the value column of a settings table converts.
type ColumnType string

const (
	TypeNumber   ColumnType = "number"
	TypeButton   ColumnType = "button"
	TypeDatetime ColumnType = "datetime"
	TypeArray    ColumnType = "array"
	TypeString   ColumnType = "string"
)

// ArraySeparator splits array-typed cells.
const ArraySeparator = "___"

// Section is one settings table. Each table has two columns, key and value,
// below a header row.
type Section struct {
	Name     string
	Table    string
	Type     ColumnType
	Required bool
}

// Section names.
const (
	SectionSystem     = "system"
	SectionThresholds = "thresholds"
	SectionLists      = "lists"
	SectionContacts   = "contacts"
	SectionMessages   = "messages"
	SectionSchedule   = "schedule"
	SectionSheets     = "sheets"
)

// DefaultSections returns the stock settings layout.
func DefaultSections() []Section {
	return []Section{
		{Name: SectionSystem, Table: "System", Type: TypeButton, Required: true},
		{Name: SectionThresholds, Table: "Thresholds", Type: TypeNumber},
		{Name: SectionLists, Table: "Lists", Type: TypeArray},
		{Name: SectionContacts, Table: "Contacts", Type: TypeString},
		{Name: SectionMessages, Table: "Messages", Type: TypeString},
		{Name: SectionSchedule, Table: "Schedule", Type: TypeDatetime},
		{Name: SectionSheets, Table: "Sheets", Type: TypeString},
	}
}

// convert turns a raw cell into the Go value for typ.
func convert(typ ColumnType, cell any) (any, error) {
	switch typ {
	case TypeNumber:
		return sheet.ToNumber(cell)
	case TypeButton:
		return sheet.ToBool(cell)
	case TypeDatetime:
		return sheet.ToTime(cell)
	case TypeArray:
		return splitArray(sheet.ToString(cell)), nil
	case TypeString, "":
		return sheet.ToString(cell), nil
	default:
		return nil, fmt.Errorf("unknown column type %q", typ)
	}
}

func splitArray(s string) []string {
	parts := strings.Split(s, ArraySeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeKey(v any) string {
	return strings.ToLower(strings.TrimSpace(sheet.ToString(v)))
}
