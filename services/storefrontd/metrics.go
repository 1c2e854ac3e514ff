package storefrontd

import "storefront/observability"

// Metrics exposes Prometheus collectors for storefrontd instrumentation.
type Metrics = observability.StorefrontMetrics

// NewMetrics returns a lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Storefront() }
