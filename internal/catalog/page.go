package catalog

const maxPageSize = 100

// pageWindow turns a 1-based page into the upstream skip/limit pair.
func pageWindow(page, size int) (skip, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = 20
	}
	return (page - 1) * size, size
}
