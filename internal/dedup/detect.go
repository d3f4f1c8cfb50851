package dedup

import "github.com/metroad/leadops/internal/lead"

// DefaultSimilarityThreshold is the name-similarity cut-off used when
// similarity matching is enabled without an explicit threshold.
const DefaultSimilarityThreshold = 0.8

// addressThresholdFactor loosens the address cut-off relative to the name
// cut-off; the same location is written in more ways than the same name.
const addressThresholdFactor = 0.8

// Reason explains why a lead was classified as a duplicate.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonKey
	ReasonBizID
	ReasonSimilar
)

func (r Reason) String() string {
	switch r {
	case ReasonKey:
		return "key"
	case ReasonBizID:
		return "biz_id"
	case ReasonSimilar:
		return "similar"
	default:
		return "none"
	}
}

// Option configures a Detector.
type Option func(*options)

type options struct {
	checkBizID      bool
	checkSimilarity bool
	threshold       float64
}

func defaultOptions() options {
	return options{
		checkBizID: true,
		threshold:  DefaultSimilarityThreshold,
	}
}

// WithBizIDCheck toggles business-registration-id matching (on by default).
func WithBizIDCheck(on bool) Option {
	return func(o *options) {
		o.checkBizID = on
	}
}

// WithSimilarity enables fuzzy matching against already accepted leads.
// A non-positive threshold falls back to DefaultSimilarityThreshold; one
// above 1 is kept and matches nothing.
func WithSimilarity(threshold float64) Option {
	return func(o *options) {
		o.checkSimilarity = true
		if threshold <= 0 {
			threshold = DefaultSimilarityThreshold
		}
		o.threshold = threshold
	}
}

// Result partitions a batch into first occurrences and duplicates. Both
// slices keep input order.
type Result struct {
	UniqueLeads    []lead.Lead `json:"unique_leads"`
	Duplicates     []lead.Lead `json:"duplicates"`
	UniqueCount    int         `json:"unique_count"`
	DuplicateCount int         `json:"duplicate_count"`
}

// Detector is the incremental form of Detect. It remembers the keys and
// business ids of every accepted lead, plus the accepted leads themselves for
// similarity checks. A Detector is not safe for concurrent use.
type Detector struct {
	opts   options
	keys   map[string]struct{}
	bizIDs map[string]struct{}

	// normalized name/address of accepted leads, parallel slices
	names []string
	addrs []string
}

// NewDetector returns an empty Detector.
func NewDetector(opts ...Option) *Detector {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Detector{
		opts:   o,
		keys:   make(map[string]struct{}),
		bizIDs: make(map[string]struct{}),
	}
}

// Seed marks stored records as already seen. Seeded records take part in
// exact-key and business-id matching only, never in similarity matching.
func (d *Detector) Seed(records ...lead.KeyRecord) {
	for _, r := range records {
		d.remember(r.BusinessName, r.RoadAddress, r.BusinessRegistrationID)
	}
}

// Check classifies l against everything seen so far without recording it.
func (d *Detector) Check(l lead.Lead) Reason {
	if _, ok := d.keys[BuildKey(l.BusinessName, l.RoadAddress)]; ok {
		return ReasonKey
	}
	if d.opts.checkBizID && l.BusinessRegistrationID != "" {
		if _, ok := d.bizIDs[l.BusinessRegistrationID]; ok {
			return ReasonBizID
		}
	}
	if d.opts.checkSimilarity && d.similarToAccepted(l) {
		return ReasonSimilar
	}
	return ReasonNone
}

// Offer classifies l and, when it is not a duplicate, accepts it. It reports
// whether l was accepted. Duplicates leave the Detector unchanged.
func (d *Detector) Offer(l lead.Lead) bool {
	if d.Check(l) != ReasonNone {
		return false
	}
	d.remember(l.BusinessName, l.RoadAddress, l.BusinessRegistrationID)
	d.names = append(d.names, Normalize(l.BusinessName))
	d.addrs = append(d.addrs, Normalize(l.RoadAddress))
	return true
}

func (d *Detector) remember(name, road, bizID string) {
	d.keys[BuildKey(name, road)] = struct{}{}
	if bizID != "" {
		d.bizIDs[bizID] = struct{}{}
	}
}

// similarToAccepted compares only against accepted leads, never against
// earlier duplicates, so similarity matching is not transitive.
func (d *Detector) similarToAccepted(l lead.Lead) bool {
	name := Normalize(l.BusinessName)
	addr := Normalize(l.RoadAddress)
	addrThreshold := d.opts.threshold * addressThresholdFactor

	for i := range d.names {
		if Similarity(name, d.names[i]) >= d.opts.threshold &&
			Similarity(addr, d.addrs[i]) >= addrThreshold {
			return true
		}
	}
	return false
}

// Detect splits leads into unique first occurrences and duplicates in a
// single left-to-right pass. Which member of a duplicate cluster survives
// depends only on input order.
func Detect(leads []lead.Lead, opts ...Option) Result {
	d := NewDetector(opts...)
	res := Result{
		UniqueLeads: make([]lead.Lead, 0, len(leads)),
		Duplicates:  make([]lead.Lead, 0),
	}
	for _, l := range leads {
		if d.Offer(l) {
			res.UniqueLeads = append(res.UniqueLeads, l)
		} else {
			res.Duplicates = append(res.Duplicates, l)
		}
	}
	res.UniqueCount = len(res.UniqueLeads)
	res.DuplicateCount = len(res.Duplicates)
	return res
}
