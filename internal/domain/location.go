package domain

import "fmt"

type LocationKind string

const (
	LocationWarehouse        LocationKind = "warehouse"
	LocationSingleProject    LocationKind = "single_project"
	LocationMultipleProjects LocationKind = "multiple_projects"
)

// ProjectUnits is the number of units of one item held by one project.
type ProjectUnits struct {
	ProjectID string `json:"project_id"`
	Label     string `json:"label"`
	Units     int    `json:"units"`
}

// Location describes where an item's units currently are.
type Location struct {
	Kind      LocationKind   `json:"kind"`
	Warehouse string         `json:"warehouse"`
	InUse     int            `json:"in_use"`
	FullyOut  bool           `json:"fully_out"`
	Projects  []ProjectUnits `json:"projects,omitempty"`
}

func (l Location) String() string {
	switch l.Kind {
	case LocationSingleProject:
		label := "Unknown Project"
		if len(l.Projects) > 0 {
			label = l.Projects[0].Label
		}
		if l.FullyOut {
			return "Out on Project: " + label
		}
		return fmt.Sprintf("%s (%d on Project: %s)", l.Warehouse, l.InUse, label)
	case LocationMultipleProjects:
		if l.FullyOut {
			return "Multiple"
		}
		return fmt.Sprintf("%s (%d on Multiple Projects)", l.Warehouse, l.InUse)
	}
	return l.Warehouse
}
