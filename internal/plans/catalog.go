package plans

// FreePlanCode is the fallback plan for accounts without a qualifying
// subscription or with an unrecognized plan code.
const FreePlanCode = "free"

// Feature keys the core gates on.
const (
	FeatureAPIAccess = "api_access"
	FeatureHDExport  = "hd_export"
	FeatureBulk      = "bulk_generation"
)

// Rate limit scopes. ScopeDefault doubles as the fallback entry when a plan
// has no limit for a requested scope.
const (
	ScopeDefault  = "default"
	ScopeGenerate = "generate"
	ScopeAdmin    = "admin"
)

// Plan is one entry of the static plan catalog. MonthlyCredits of zero means
// the plan receives no recurring grant (e.g. unlimited tiers). RateLimits is
// hits per window, keyed by scope.
type Plan struct {
	Code           string
	Name           string
	MonthlyCredits int64
	Features       []string
	RateLimits     map[string]int
	Watermark      bool
}

// HasFeature reports whether the plan carries the named feature flag.
func (p Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// LimitFor returns the plan's rate limit for a scope, falling back to the
// plan's default scope entry.
func (p Plan) LimitFor(scope string) int {
	if limit, ok := p.RateLimits[scope]; ok {
		return limit
	}
	return p.RateLimits[ScopeDefault]
}

// catalog is ordered cheapest first for display.
var catalog = []Plan{
	{
		Code:           FreePlanCode,
		Name:           "Free",
		MonthlyCredits: 25,
		Features:       nil,
		RateLimits: map[string]int{
			ScopeDefault:  60,
			ScopeGenerate: 10,
		},
		Watermark: true,
	},
	{
		Code:           "starter",
		Name:           "Starter",
		MonthlyCredits: 200,
		Features:       []string{FeatureHDExport},
		RateLimits: map[string]int{
			ScopeDefault:  120,
			ScopeGenerate: 30,
		},
	},
	{
		Code:           "studio",
		Name:           "Studio",
		MonthlyCredits: 1000,
		Features:       []string{FeatureHDExport, FeatureAPIAccess},
		RateLimits: map[string]int{
			ScopeDefault:  300,
			ScopeGenerate: 60,
		},
	},
	{
		Code:           "pro",
		Name:           "Pro",
		MonthlyCredits: 5000,
		Features:       []string{FeatureHDExport, FeatureAPIAccess, FeatureBulk},
		RateLimits: map[string]int{
			ScopeDefault:  600,
			ScopeGenerate: 120,
		},
	},
}

var catalogByCode = func() map[string]Plan {
	byCode := make(map[string]Plan, len(catalog))
	for _, plan := range catalog {
		byCode[plan.Code] = plan
	}
	return byCode
}()

// Catalog returns the full plan catalog in display order.
func Catalog() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// PlanByCode looks up a catalog entry.
func PlanByCode(code string) (Plan, bool) {
	plan, ok := catalogByCode[code]
	return plan, ok
}

// FreePlan returns the fallback plan.
func FreePlan() Plan {
	return catalogByCode[FreePlanCode]
}
