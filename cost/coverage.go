/*
coverage.go - Tenant license coverage resolution

PURPOSE:
  A tenant-licensed item has one flat cost shared by every seat its
  coverage rules reach. This file computes that seat count.

ALGORITHM:
  1. Expand each rule to a set of active positions:
       organization → every active position
       department   → active positions under the department's active divisions
       division     → active positions of the division
       position     → the position itself, if active
  2. UNION the sets by position ID
  3. Sum AuthorizedCount over the union

CRITICAL INVARIANT:
  Union before summing. A position reached by an organization rule AND a
  division rule is counted once. Summing per rule would double-count it
  and silently under-charge every covered seat.

DEGENERATE CASES:
  No rules, or rules that resolve to nothing, give headcount 0. The
  calculator prices that as a zero share, it never divides by zero.
  Rules pointing at deleted or inactive scopes are skipped.

SEE ALSO:
  - position.go: Uses the headcount for per-seat shares
*/
package cost

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Coverage is the resolved coverage of one tenant item.
type Coverage struct {
	SoftwareID  SoftwareID
	RuleCount   int
	PositionIDs []PositionID // sorted, deduplicated
	Headcount   int          // sum of AuthorizedCount over PositionIDs
}

// ResolveCoveredHeadcount returns the deduplicated authorized headcount
// covered by a software item's coverage rules. Zero means unallocatable.
func (e *Engine) ResolveCoveredHeadcount(ctx context.Context, softwareID SoftwareID) (int, error) {
	cov, err := e.ResolveCoverage(ctx, softwareID)
	if err != nil {
		return 0, err
	}
	return cov.Headcount, nil
}

// ResolveCoverage expands a software item's coverage rules into the set of
// covered positions. Only repository failures are returned as errors.
func (e *Engine) ResolveCoverage(ctx context.Context, softwareID SoftwareID) (*Coverage, error) {
	rules, err := e.coverage.CoverageRules(ctx, softwareID)
	if err != nil {
		return nil, fmt.Errorf("load coverage rules for software %d: %w", softwareID, err)
	}

	cov := &Coverage{SoftwareID: softwareID, RuleCount: len(rules)}
	if len(rules) == 0 {
		return cov, nil
	}

	covered := make(map[PositionID]int)
	for _, rule := range rules {
		positions, err := e.expandRule(ctx, rule)
		if err != nil {
			return nil, err
		}
		for _, p := range positions {
			covered[p.ID] = p.AuthorizedCount
		}
	}

	cov.PositionIDs = make([]PositionID, 0, len(covered))
	for id, authorized := range covered {
		cov.PositionIDs = append(cov.PositionIDs, id)
		cov.Headcount += authorized
	}
	sort.Slice(cov.PositionIDs, func(i, j int) bool { return cov.PositionIDs[i] < cov.PositionIDs[j] })

	return cov, nil
}

// expandRule returns the active positions one rule reaches.
func (e *Engine) expandRule(ctx context.Context, rule CoverageRule) ([]Position, error) {
	switch rule.Scope {
	case ScopeOrganization:
		positions, err := e.org.ListPositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", rule, err)
		}
		return positions, nil

	case ScopeDepartment:
		dept, err := e.org.GetDepartment(ctx, DepartmentID(rule.ScopeID))
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", rule, err)
		}
		if dept == nil {
			e.dangling(rule)
			return nil, nil
		}
		divisions, err := e.org.ListDivisionsInDepartment(ctx, dept.ID)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", rule, err)
		}
		var positions []Position
		for _, div := range divisions {
			ps, err := e.org.ListPositionsInDivision(ctx, div.ID)
			if err != nil {
				return nil, fmt.Errorf("expand %s: %w", rule, err)
			}
			positions = append(positions, ps...)
		}
		return positions, nil

	case ScopeDivision:
		div, err := e.org.GetDivision(ctx, DivisionID(rule.ScopeID))
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", rule, err)
		}
		if div == nil {
			e.dangling(rule)
			return nil, nil
		}
		positions, err := e.org.ListPositionsInDivision(ctx, div.ID)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", rule, err)
		}
		return positions, nil

	case ScopePosition:
		pos, err := e.org.GetPosition(ctx, PositionID(rule.ScopeID))
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", rule, err)
		}
		if pos == nil {
			e.dangling(rule)
			return nil, nil
		}
		return []Position{*pos}, nil

	default:
		e.logger.Warn("skipping coverage rule with unknown scope",
			zap.Int64("rule_id", rule.ID),
			zap.Int64("software_id", int64(rule.SoftwareID)),
			zap.String("scope", string(rule.Scope)))
		e.observer.ExcludedLine(ExcludedInvalidScope)
		return nil, nil
	}
}

func (e *Engine) dangling(rule CoverageRule) {
	e.logger.Debug("coverage rule references a missing or inactive scope",
		zap.Int64("rule_id", rule.ID),
		zap.Int64("software_id", int64(rule.SoftwareID)),
		zap.String("scope", string(rule.Scope)),
		zap.Int64("scope_id", rule.ScopeID))
	e.observer.ExcludedLine(ExcludedDanglingCoverage)
}

// coveredHeadcount memoizes ResolveCoveredHeadcount within one pass.
func (e *Engine) coveredHeadcount(ctx context.Context, p *pass, softwareID SoftwareID) (int, error) {
	if n, ok := p.headcount[softwareID]; ok {
		return n, nil
	}
	n, err := e.ResolveCoveredHeadcount(ctx, softwareID)
	if err != nil {
		return 0, err
	}
	p.headcount[softwareID] = n
	return n, nil
}
