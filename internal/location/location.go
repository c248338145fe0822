// Package location describes where the units of an inventory item are:
// in the warehouse, out on one project, or spread across several.
package location

import (
	"stageline/internal/domain"
)

// Resolve builds the location of itemID from the active projects that hold
// it. inUse and total come from reconciliation. Distinct projects decide
// between single and multiple; per-project occurrence counts are kept.
func Resolve(itemID, warehouse string, projects []domain.Project, inUse, total int) domain.Location {
	loc := domain.Location{
		Kind:      domain.LocationWarehouse,
		Warehouse: warehouse,
		InUse:     inUse,
	}
	for _, p := range projects {
		if !p.Active() {
			continue
		}
		if n := p.Histogram().Count(itemID); n > 0 {
			loc.Projects = append(loc.Projects, domain.ProjectUnits{
				ProjectID: p.ID,
				Label:     p.Label(),
				Units:     n,
			})
		}
	}
	switch {
	case len(loc.Projects) == 0:
		return loc
	case inUse <= 0 && total > 0:
		// Inconsistent inputs: the projects hold units but nothing is in use.
		return loc
	case len(loc.Projects) == 1:
		loc.Kind = domain.LocationSingleProject
	default:
		loc.Kind = domain.LocationMultipleProjects
	}
	loc.FullyOut = inUse >= total
	return loc
}

// Describe is Resolve rendered as display text.
func Describe(itemID, warehouse string, projects []domain.Project, inUse, total int) string {
	return Resolve(itemID, warehouse, projects, inUse, total).String()
}
