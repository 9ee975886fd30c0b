package declare

import (
	"errors"
	"fmt"

	"streamretry/pkg/retry"
)

// Target receives the declarations of a table.
type Target struct {
	Registry  *retry.Registry
	Executors *retry.Executors
	// Taxonomy receives custom categories and validates policies; retry.DefaultTaxonomy when nil
	Taxonomy *retry.Taxonomy
	// ExecutorOptions are passed to every named executor built from the table
	ExecutorOptions []retry.Option
}

// Apply declares every row of t on dst. Categories come first, then executors, types
// and methods, so rows may refer to categories and executors defined in the same table.
// Every policy is built once to reject invalid rows up front. All row errors are returned.
func Apply(t Table, dst Target) error {
	if dst.Registry == nil {
		return errors.New("declare: nil registry")
	}
	tax := dst.Taxonomy
	if tax == nil {
		tax = retry.DefaultTaxonomy()
	}

	var errs []error
	fail := func(kind string, i int, err error) {
		errs = append(errs, fmt.Errorf("%s[%d]: %w", kind, i, err))
	}

	for i, c := range t.Categories {
		if err := tax.Define(retry.Category(c.Name), retry.Category(c.Parent)); err != nil {
			fail("categories", i, err)
		}
	}

	for i, x := range t.Executors {
		if dst.Executors == nil {
			fail("executors", i, errors.New("no executor registry"))
			continue
		}
		spec, err := x.Policy.Spec()
		if err != nil {
			fail("executors", i, err)
			continue
		}
		p, err := retry.Build(spec, tax)
		if err != nil {
			fail("executors", i, err)
			continue
		}
		if err := dst.Executors.Register(x.Name, retry.NewExecutor(p, dst.ExecutorOptions...)); err != nil {
			fail("executors", i, err)
		}
	}

	for i, ty := range t.Types {
		id := retry.TypeID(ty.Type)
		if ty.Recover {
			dst.Registry.MarkRecoverType(id)
		}
		if ty.Policy == nil {
			continue
		}
		spec, err := checked(*ty.Policy, tax, dst.Executors)
		if err != nil {
			fail("types", i, err)
			continue
		}
		if err := dst.Registry.DeclareType(id, spec); err != nil {
			fail("types", i, err)
		}
	}

	for i, mr := range t.Methods {
		m := mr.Method()
		var err error
		switch {
		case mr.Policy != nil:
			var spec retry.PolicySpec
			if spec, err = checked(*mr.Policy, tax, dst.Executors); err == nil {
				err = dst.Registry.DeclareMethod(m, spec)
			}
			if err == nil && mr.Recover {
				err = dst.Registry.MarkRecover(m)
			}
		case mr.Recover:
			err = dst.Registry.MarkRecover(m)
		default:
			err = dst.Registry.RegisterMethod(m)
		}
		if err != nil {
			fail("methods", i, err)
		}
	}

	return errors.Join(errs...)
}

// checked converts p and verifies that it builds, or that its executor exists.
func checked(p Policy, tax *retry.Taxonomy, execs *retry.Executors) (retry.PolicySpec, error) {
	spec, err := p.Spec()
	if err != nil {
		return retry.PolicySpec{}, err
	}
	if spec.Custom() {
		if _, err := execs.Lookup(spec.Executor); err != nil {
			return retry.PolicySpec{}, err
		}
		return spec, nil
	}
	if _, err := retry.Build(spec, tax); err != nil {
		return retry.PolicySpec{}, err
	}
	return spec, nil
}
