// Package retry is a declarative retry engine for lazy single-value and stream results.
//
// Declarations (PolicySpec) are attached to methods or types in a Registry. A Resolver
// picks the declaration that applies to a call (method, then declaring type, then the
// concrete type of the target) and builds an Executor from it, caching the result per
// target and method. The Executor wraps the rest of the interceptor chain: every attempt
// runs on a fresh clone of the invocation, failures are filtered by category, and
// delays follow the policy mode.
//
// Basic usage:
//
//	reg := retry.NewRegistry()
//	get := retry.Method{Owner: "store.Client", Name: "Get", Params: []string{"string"}, Returns: retry.ShapeSingle}
//	_ = reg.DeclareMethod(get, retry.DefaultSpec())
//
//	advisor := retry.NewAdvisor(retry.NewResolver(reg, nil))
//	call := retry.Chain(endpoint, advisor)
//	raw, _ := call(ctx, client, get, "key")
//	v, err := raw.(retry.Single).Await(ctx)
//
// Failures are classified with CategoryOf. Errors may carry their own category (Mark,
// NewFailure, Categorized) or be mapped from internal/shared error kinds. Once a policy
// stops, the caller receives an *ExhaustedError wrapping the last failure; failures the
// policy does not retry are returned unchanged.
package retry
