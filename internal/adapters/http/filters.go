package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/core/usecases"
)

type filterState struct {
	Query   domain.FilterQuery   `json:"query"`
	Counts  usecases.FacetCounts `json:"counts"`
	Matched int                  `json:"matched"`
	Total   int                  `json:"total"`
}

func currentFilterState(deps *Dependencies, q domain.FilterQuery) filterState {
	return filterState{
		Query:   q,
		Counts:  deps.Filters.Counts(),
		Matched: len(deps.Filters.Query(q)),
		Total:   deps.Store.Len(),
	}
}

// GetFiltersHandler returns the active filter with per-facet counts.
func GetFiltersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(currentFilterState(deps, deps.Filters.Current()))
	}
}

type toggleRequest struct {
	Facet string `json:"facet"`
	Value string `json:"value"`
}

// ToggleFilterHandler flips one value of one facet in the active filter.
func ToggleFilterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req toggleRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Facet == "" || req.Value == "" {
			return errBadRequest(c, "facet and value are required")
		}

		facet, err := domain.ParseFacet(req.Facet)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		q, err := deps.Filters.Toggle(facet, req.Value)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		return c.JSON(currentFilterState(deps, q))
	}
}

// ResetFiltersHandler clears every facet of the active filter.
func ResetFiltersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(currentFilterState(deps, deps.Filters.Reset()))
	}
}

// FilterResultsHandler lists the detections matching the active filter.
func FilterResultsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, p := paginate(c, deps.Filters.Filtered())
		SetLinkHeaders(c, p)
		return c.JSON(PaginatedResponse{Data: page, Pagination: p})
	}
}
