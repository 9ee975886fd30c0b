package retry

// ErrorFilter decides whether a failure may be retried.
// Exclusion always wins; an empty include list admits every category not excluded.
type ErrorFilter struct {
	Include  []Category
	Exclude  []Category
	taxonomy *Taxonomy
}

// NewErrorFilter returns a filter resolving is-a relations against tax.
// A nil taxonomy falls back to DefaultTaxonomy.
func NewErrorFilter(tax *Taxonomy, include, exclude []Category) ErrorFilter {
	if tax == nil {
		tax = defaultTaxonomy
	}
	return ErrorFilter{
		Include:  append([]Category(nil), include...),
		Exclude:  append([]Category(nil), exclude...),
		taxonomy: tax,
	}
}

var defaultTaxonomy = DefaultTaxonomy()

// Test reports whether err should be retried.
func (f ErrorFilter) Test(err error) bool {
	if err == nil {
		return false
	}
	return f.TestCategory(CategoryOf(err))
}

// TestCategory applies the filter to a category directly.
func (f ErrorFilter) TestCategory(c Category) bool {
	tax := f.taxonomy
	if tax == nil {
		tax = defaultTaxonomy
	}
	for _, ex := range f.Exclude {
		if tax.IsA(c, ex) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, in := range f.Include {
		if tax.IsA(c, in) {
			return true
		}
	}
	return false
}
