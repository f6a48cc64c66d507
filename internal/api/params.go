package api

import (
	"encoding/json"
	"net/url"
	"strconv"

	"todo-cli/internal/model"
)

// ListParams builds the query string for GET /todos.
//
// Filter fields that are unset or empty strings are dropped; when nothing is
// left the filters parameter is omitted entirely. Pagination fields are only
// included when set.
func ListParams(filters model.Filters, pagination model.PaginationParams) url.Values {
	params := url.Values{}

	if cleaned := cleanFilters(filters); len(cleaned) > 0 {
		b, err := json.Marshal(cleaned)
		if err == nil {
			params.Set("filters", string(b))
		}
	}
	if pagination.OrderRule != "" {
		params.Set("orderRule", string(pagination.OrderRule))
	}
	if pagination.OrderKey != "" {
		params.Set("orderKey", pagination.OrderKey)
	}
	if pagination.Page > 0 {
		params.Set("page", strconv.Itoa(pagination.Page))
	}
	if pagination.Limit > 0 {
		params.Set("rows", strconv.Itoa(pagination.Limit))
	}
	return params
}

func cleanFilters(filters model.Filters) map[string]any {
	// Round-trip through JSON so new filter fields follow their json tags.
	b, err := json.Marshal(filters)
	if err != nil {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	delete(raw, "search")
	out := map[string]any{}
	for k, v := range raw {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}
