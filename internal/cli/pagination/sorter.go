package pagination

import (
	"slices"
	"sort"
	"strings"

	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
)

// Sortable flow fields.
const (
	FieldName    = "name"
	FieldLabel   = "label"
	FieldType    = "type"
	FieldStatus  = "status"
	FieldActive  = "active"
	FieldLatest  = "latest"
	FieldUpdates = "updates"
)

// Sorter sorts flow statuses by a named field.
type Sorter interface {
	Sort(flows []salesforce.FlowStatus, field, order string)
	IsValidField(field string) bool
	ValidFields() []string
}

// FlowSorter implements Sorter for salesforce.FlowStatus. Ties are broken by name.
type FlowSorter struct {
	less map[string]func(a, b salesforce.FlowStatus) int
}

// NewFlowSorter creates a FlowSorter.
func NewFlowSorter() *FlowSorter {
	return &FlowSorter{
		less: map[string]func(a, b salesforce.FlowStatus) int{
			FieldName:  func(salesforce.FlowStatus, salesforce.FlowStatus) int { return 0 },
			FieldLabel: func(a, b salesforce.FlowStatus) int { return strings.Compare(a.Label, b.Label) },
			FieldType: func(a, b salesforce.FlowStatus) int {
				return strings.Compare(a.FlowType.Type, b.FlowType.Type)
			},
			// Active flows first in ascending order.
			FieldStatus:  func(a, b salesforce.FlowStatus) int { return compareBool(b.IsActive, a.IsActive) },
			FieldActive:  func(a, b salesforce.FlowStatus) int { return a.ActiveVersion - b.ActiveVersion },
			FieldLatest:  func(a, b salesforce.FlowStatus) int { return a.LatestVersion - b.LatestVersion },
			FieldUpdates: func(a, b salesforce.FlowStatus) int { return compareBool(b.HasNewerVersion, a.HasNewerVersion) },
		},
	}
}

// IsValidField reports whether field can be sorted on.
func (s *FlowSorter) IsValidField(field string) bool {
	_, ok := s.less[field]
	return ok
}

// ValidFields returns the sortable fields in alphabetical order.
func (s *FlowSorter) ValidFields() []string {
	fields := make([]string, 0, len(s.less))
	for f := range s.less {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Sort orders flows in place. Unknown fields leave the slice unchanged.
func (s *FlowSorter) Sort(flows []salesforce.FlowStatus, field, order string) {
	cmp, ok := s.less[field]
	if !ok {
		return
	}
	slices.SortStableFunc(flows, func(a, b salesforce.FlowStatus) int {
		c := cmp(a, b)
		if c == 0 {
			c = strings.Compare(a.Name, b.Name)
		}
		if order == SortOrderDesc {
			return -c
		}
		return c
	})
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}
