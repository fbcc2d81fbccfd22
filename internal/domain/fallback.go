package domain

// FallbackCategories returns the catalog as categories with no articles. It is
// served in place of a snapshot that does not exist yet.
func FallbackCategories(catalog []Category) []CategoryArticles {
	out := make([]CategoryArticles, 0, len(catalog))
	for _, c := range catalog {
		out = append(out, CategoryArticles{
			ID:       c.ID,
			Title:    c.Title,
			Summary:  c.Summary,
			Articles: []Article{},
		})
	}
	return out
}
