package elasticsearch

import "github.com/utafrali/moviesearch/internal/domain"

// indexBody returns the create-index request body for mapping.
func indexBody(mapping domain.Mapping) map[string]any {
	props := make(map[string]any, len(mapping))
	for _, f := range mapping {
		prop := map[string]any{"type": string(f.Type)}
		if f.Type == domain.TypeDate {
			prop["format"] = "yyyy-MM-dd"
		}
		props[f.Name] = prop
	}
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": props,
		},
	}
}

// searchBody translates q into the query DSL: a bool query whose must clause
// is a fuzzy multi_match (or match_all) and whose filters are the ranges.
func searchBody(q *domain.Query) map[string]any {
	var must map[string]any
	if q.Text != nil {
		mm := map[string]any{
			"query":  q.Text.Query,
			"fields": q.Text.Fields,
		}
		if q.Text.Fuzziness != "" {
			mm["fuzziness"] = q.Text.Fuzziness
		}
		must = map[string]any{"multi_match": mm}
	} else {
		must = map[string]any{"match_all": map[string]any{}}
	}

	boolQuery := map[string]any{
		"must": []any{must},
	}
	if filters := buildFilters(q); len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	body := map[string]any{
		"query": map[string]any{"bool": boolQuery},
	}
	if q.Limit > 0 {
		body["size"] = q.Limit
	}
	return body
}

func buildFilters(q *domain.Query) []any {
	var filters []any

	for _, r := range q.DateRanges {
		rng := map[string]any{}
		if r.From != "" {
			rng["gte"] = r.From
		}
		if r.To != "" {
			rng["lte"] = r.To
		}
		if len(rng) == 0 {
			continue
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{r.Field: rng},
		})
	}

	for _, r := range q.NumericRanges {
		rng := map[string]any{}
		if r.Min != nil {
			rng["gte"] = *r.Min
		}
		if r.Max != nil {
			rng["lte"] = *r.Max
		}
		if len(rng) == 0 {
			continue
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{r.Field: rng},
		})
	}

	return filters
}
