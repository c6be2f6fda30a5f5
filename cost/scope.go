package cost

import (
	"context"
	"fmt"
	"sort"
)

// Scope is a user's visibility over the organization, as handed over by
// the authorization layer. The engine trusts it and never re-derives it.
type Scope struct {
	OrganizationWide bool
	DepartmentIDs    []DepartmentID
	DivisionIDs      []DivisionID
}

// OrganizationScope sees every department.
func OrganizationScope() Scope { return Scope{OrganizationWide: true} }

// FilterDepartments returns the active departments visible under scope,
// ordered by name. A division-level scope makes its parent department
// visible.
func FilterDepartments(ctx context.Context, org OrgStore, scope Scope) ([]Department, error) {
	all, err := org.ListDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	if scope.OrganizationWide {
		return all, nil
	}

	visible := make(map[DepartmentID]bool, len(scope.DepartmentIDs))
	for _, id := range scope.DepartmentIDs {
		visible[id] = true
	}
	for _, id := range scope.DivisionIDs {
		div, err := org.GetDivision(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load division %d: %w", id, err)
		}
		if div != nil {
			visible[div.DepartmentID] = true
		}
	}

	out := make([]Department, 0, len(visible))
	for _, d := range all {
		if visible[d.ID] {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
