package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"scorecard/api/internal/hierarchy"
	"scorecard/api/internal/schema"
	"scorecard/api/internal/search"
	"scorecard/api/internal/store"
)

// CreateAlignment links a functional node to an ORD node. Both endpoints
// must exist and sit on their declared side of the hierarchy.
func (s *Service) CreateAlignment(ctx context.Context, in AlignmentCreate, actor string) (AlignmentRow, error) {
	if err := s.check(in); err != nil {
		return AlignmentRow{}, err
	}
	functionalType, _ := schema.ParseNodeType(in.FunctionalType)
	ordType, _ := schema.ParseNodeType(in.OrdType)
	strength, _ := schema.ParseStrength(in.Strength)

	functional, err := s.endpoint(ctx, "functional", functionalType, in.FunctionalID)
	if err != nil {
		return AlignmentRow{}, err
	}
	ord, err := s.endpoint(ctx, "ord", ordType, in.OrdID)
	if err != nil {
		return AlignmentRow{}, err
	}
	if schema.IsOrd(functional.Function) {
		return AlignmentRow{}, domainError(http.StatusUnprocessableEntity, "INVALID_ALIGNMENT",
			fmt.Sprintf("%s %s belongs to the ORD hierarchy, not a functional one", functionalType, in.FunctionalID), nil)
	}
	if !schema.IsOrd(ord.Function) {
		return AlignmentRow{}, domainError(http.StatusUnprocessableEntity, "INVALID_ALIGNMENT",
			fmt.Sprintf("%s %s belongs to function %q, not ORD", ordType, in.OrdID, ord.Function), nil)
	}

	alignment, err := s.store.CreateAlignment(ctx, store.AlignmentInput{
		FunctionalType: string(functionalType),
		FunctionalID:   functional.ID,
		OrdType:        string(ordType),
		OrdID:          ord.ID,
		Strength:       string(strength),
		Rationale:      strings.TrimSpace(in.Rationale),
		CreatedBy:      actor,
	})
	if err != nil {
		return AlignmentRow{}, err
	}
	s.logger.Info("alignment created",
		zap.String("id", alignment.ID),
		zap.String("functional", alignment.FunctionalType+"/"+alignment.FunctionalID),
		zap.String("ord", alignment.OrdType+"/"+alignment.OrdID),
		zap.String("actor", actor),
	)
	return alignmentRow(alignment), nil
}

func (s *Service) endpoint(ctx context.Context, side string, nodeType schema.NodeType, id string) (store.Node, error) {
	node, err := s.store.NodeByID(ctx, nodeType, id)
	if isNotFound(err) {
		return store.Node{}, notFound("%s %s %s not found", side, nodeType, id)
	}
	return node, err
}

func (s *Service) GetAlignment(ctx context.Context, id string) (AlignmentRow, error) {
	alignment, err := s.store.GetAlignment(ctx, id)
	if err != nil {
		return AlignmentRow{}, err
	}
	return alignmentRow(alignment), nil
}

func (s *Service) UpdateAlignment(ctx context.Context, id string, in AlignmentUpdate) (AlignmentRow, error) {
	if err := s.check(in); err != nil {
		return AlignmentRow{}, err
	}
	patch := store.AlignmentPatch{Rationale: in.Rationale}
	if in.Strength != nil {
		strength, _ := schema.ParseStrength(*in.Strength)
		value := string(strength)
		patch.Strength = &value
	}
	alignment, err := s.store.UpdateAlignment(ctx, id, patch)
	if err != nil {
		return AlignmentRow{}, err
	}
	return alignmentRow(alignment), nil
}

func (s *Service) DeleteAlignment(ctx context.Context, id string) error {
	return s.store.DeleteAlignment(ctx, id)
}

// ListAlignments returns the edges touching one node, or every edge when no
// node is given.
func (s *Service) ListAlignments(ctx context.Context, itemType, itemID string) ([]AlignmentRow, error) {
	if itemType == "" && itemID == "" {
		items, err := s.store.ListAlignments(ctx)
		if err != nil {
			return nil, err
		}
		return alignmentRows(items), nil
	}
	nodeType, err := parseNodeRef(itemType, itemID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.AlignmentsForNode(ctx, nodeType, itemID)
	if err != nil {
		return nil, err
	}
	return alignmentRows(items), nil
}

func (s *Service) CountAlignments(ctx context.Context, itemType, itemID string) (int, error) {
	nodeType, err := parseNodeRef(itemType, itemID)
	if err != nil {
		return 0, err
	}
	return s.store.CountAlignments(ctx, nodeType, itemID)
}

func parseNodeRef(itemType, itemID string) (schema.NodeType, error) {
	nodeType, ok := schema.ParseNodeType(itemType)
	if !ok || strings.TrimSpace(itemType) == "" {
		return "", invalidInput("Unknown item type %q", itemType)
	}
	if strings.TrimSpace(itemID) == "" {
		return "", invalidInput("itemId is required")
	}
	return nodeType, nil
}

type TargetQuery struct {
	Term        string
	Side        string
	ExcludeType string
	ExcludeID   string
	Limit       int
}

// SearchTargets finds nodes to link against, excluding the node being edited.
func (s *Service) SearchTargets(ctx context.Context, q TargetQuery) (search.Response, error) {
	query := search.Query{Text: strings.TrimSpace(q.Term), ExcludeID: q.ExcludeID, Limit: q.Limit}
	switch search.Side(strings.ToLower(q.Side)) {
	case "":
	case search.SideOrd:
		query.Side = search.SideOrd
	case search.SideFunctional:
		query.Side = search.SideFunctional
	default:
		return search.Response{}, invalidInput("Unknown side %q", q.Side)
	}
	if q.ExcludeType != "" {
		nodeType, ok := schema.ParseNodeType(q.ExcludeType)
		if !ok {
			return search.Response{}, invalidInput("Unknown exclude type %q", q.ExcludeType)
		}
		query.ExcludeType = nodeType
	}
	if s.search == nil || query.Text == "" {
		return search.Response{Results: []search.Result{}, Query: query.Text}, nil
	}
	return s.search.Search(ctx, query), nil
}

type AlignmentHierarchy struct {
	Ord        hierarchy.ScoreCard            `json:"ord"`
	Functional map[string]hierarchy.ScoreCard `json:"functional"`
}

// AlignmentHierarchy splits the tree into the ORD hierarchy and one tree per
// function for the link picker.
func (s *Service) AlignmentHierarchy(ctx context.Context) (AlignmentHierarchy, error) {
	card, err := s.GetScoreCard(ctx, "")
	if err != nil {
		return AlignmentHierarchy{}, err
	}
	ord, functional := card.Split()
	return AlignmentHierarchy{Ord: ord, Functional: functional}, nil
}

type BulkFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type BulkResult struct {
	Succeeded []any         `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

func newBulkResult() BulkResult {
	return BulkResult{Succeeded: []any{}, Failed: []BulkFailure{}}
}

func (r *BulkResult) fail(index int, err error) {
	_, code, message, _ := mapError(err)
	if code == "SERVER_ERROR" {
		message = "Server error"
	}
	r.Failed = append(r.Failed, BulkFailure{Index: index, Error: message, Code: code})
}

// BulkCreateAlignments creates each item independently; failures are
// reported by input index.
func (s *Service) BulkCreateAlignments(ctx context.Context, items []json.RawMessage, actor string) BulkResult {
	result := newBulkResult()
	for i, raw := range items {
		var in AlignmentCreate
		if err := decodeStrict(raw, &in); err != nil {
			result.fail(i, err)
			continue
		}
		row, err := s.CreateAlignment(ctx, in, actor)
		if err != nil {
			s.logBulkFailure("create", i, err)
			result.fail(i, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, row)
	}
	return result
}

func (s *Service) BulkUpdateAlignments(ctx context.Context, items []json.RawMessage) BulkResult {
	result := newBulkResult()
	for i, raw := range items {
		var in AlignmentUpdate
		if err := decodeStrict(raw, &in); err != nil {
			result.fail(i, err)
			continue
		}
		if strings.TrimSpace(in.ID) == "" {
			result.fail(i, invalidInput("id is required"))
			continue
		}
		row, err := s.UpdateAlignment(ctx, in.ID, in)
		if err != nil {
			s.logBulkFailure("update", i, err)
			result.fail(i, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, row)
	}
	return result
}

func (s *Service) BulkDeleteAlignments(ctx context.Context, ids []string) BulkResult {
	result := newBulkResult()
	for i, id := range ids {
		if err := s.store.DeleteAlignment(ctx, id); err != nil {
			s.logBulkFailure("delete", i, err)
			result.fail(i, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

func (s *Service) logBulkFailure(op string, index int, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) || isNotFound(err) {
		return
	}
	s.logger.Error("bulk alignment "+op+" failed", zap.Int("index", index), zap.Error(err))
}
