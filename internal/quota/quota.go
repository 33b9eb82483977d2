package quota

import (
	"context"
	"fmt"
	"math"
)

// Package quota decides whether a prospective upload is admissible under the
// owner's storage policy. Usage is always computed from committed state at
// decision time; admission is best-effort across concurrent uploads, not
// linearizable (no per-account lock is taken).

const (
	mib = 1 << 20
	gib = 1 << 30

	// WarningThresholdPercent is the usage share above which callers should
	// surface a warning to the owner.
	WarningThresholdPercent = 80
)

// Policy is the pair of limits applicable to an account: per-file size and
// total account storage. Policies are configuration data, never mutated by
// the pipeline.
type Policy struct {
	Slug            string
	MaxFileSize     int64
	MaxTotalStorage int64
}

var policies = map[string]Policy{
	"unverified":             {Slug: "unverified", MaxFileSize: 10 * mib, MaxTotalStorage: 50 * mib},
	"verified":               {Slug: "verified", MaxFileSize: 100 * mib, MaxTotalStorage: 50 * gib},
	"functionally_unlimited": {Slug: "functionally_unlimited", MaxFileSize: 500 * mib, MaxTotalStorage: 300 * gib},
}

// PolicyFor returns the policy for a slug. Unknown or empty slugs fall back
// to the unverified tier.
func PolicyFor(slug string) Policy {
	if p, ok := policies[slug]; ok {
		return p
	}
	return policies["unverified"]
}

// Usage is a point-in-time snapshot of an owner's storage consumption.
type Usage struct {
	Used           int64   `json:"storage_used"`
	Limit          int64   `json:"storage_limit"`
	Policy         string  `json:"policy"`
	PercentageUsed float64 `json:"percentage_used"`
	AtWarning      bool    `json:"at_warning"`
	OverQuota      bool    `json:"over_quota"`
}

// Source provides the committed account state the guard evaluates against.
type Source interface {
	// TotalSizeByOwner returns the sum of the owner's committed upload sizes.
	TotalSizeByOwner(ctx context.Context, ownerID string) (int64, error)
	// PolicySlug returns the owner's assigned policy slug; empty means unassigned.
	PolicySlug(ctx context.Context, ownerID string) (string, error)
}

// Guard evaluates upload admissibility for an owner.
type Guard struct {
	src Source
}

// NewGuard constructs a Guard over the given source of committed state.
func NewGuard(src Source) *Guard {
	return &Guard{src: src}
}

// Policy resolves the owner's applicable policy.
func (g *Guard) Policy(ctx context.Context, ownerID string) (Policy, error) {
	slug, err := g.src.PolicySlug(ctx, ownerID)
	if err != nil {
		return Policy{}, fmt.Errorf("resolve policy: %w", err)
	}
	return PolicyFor(slug), nil
}

// Usage computes the owner's current usage snapshot from committed state.
func (g *Guard) Usage(ctx context.Context, ownerID string) (Usage, error) {
	policy, err := g.Policy(ctx, ownerID)
	if err != nil {
		return Usage{}, err
	}
	used, err := g.src.TotalSizeByOwner(ctx, ownerID)
	if err != nil {
		return Usage{}, fmt.Errorf("compute usage: %w", err)
	}

	var pct float64
	if policy.MaxTotalStorage > 0 {
		pct = math.Round(float64(used)/float64(policy.MaxTotalStorage)*100*100) / 100
	}

	return Usage{
		Used:           used,
		Limit:          policy.MaxTotalStorage,
		Policy:         policy.Slug,
		PercentageUsed: pct,
		AtWarning:      pct >= WarningThresholdPercent,
		OverQuota:      used >= policy.MaxTotalStorage,
	}, nil
}

// CanAdmit reports whether an upload of prospectiveSize is admissible for the
// owner, along with the usage snapshot the decision was made against. The
// snapshot reflects committed state only; two concurrent admissions for the
// same owner can both pass against a value that does not yet include the
// other's in-flight bytes.
func (g *Guard) CanAdmit(ctx context.Context, ownerID string, prospectiveSize int64) (bool, Usage, error) {
	usage, err := g.Usage(ctx, ownerID)
	if err != nil {
		return false, Usage{}, err
	}
	policy := PolicyFor(usage.Policy)

	if prospectiveSize > policy.MaxFileSize {
		return false, usage, nil
	}
	if usage.Used+prospectiveSize > policy.MaxTotalStorage {
		return false, usage, nil
	}
	return true, usage, nil
}
