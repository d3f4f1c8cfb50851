package ingest

import (
	"github.com/metroad/leadops/internal/dedup"
	"github.com/metroad/leadops/internal/geo"
	"github.com/metroad/leadops/internal/lead"
	"github.com/metroad/leadops/pkg/localdata"
)

// Result summarizes one ingestion run.
type Result struct {
	ServiceID  string         `json:"service_id,omitempty"`
	Leads      []lead.Lead    `json:"-"`
	Pages      int            `json:"pages"`
	Fetched    int            `json:"fetched"`
	Invalid    int            `json:"invalid"`
	Closed     int            `json:"closed"`
	Duplicates int            `json:"duplicates"`
	Proximity  map[string]int `json:"proximity"`
}

// collector converts rows in arrival order and drops rows already seen in the run.
type collector struct {
	det           *dedup.Detector
	stations      *geo.StationIndex
	maxDistance   float64
	onlyOperating bool
	serviceID     string
	res           *Result
}

func newCollector(serviceID string, stations *geo.StationIndex, maxDistance float64, onlyOperating bool) *collector {
	return &collector{
		det:           dedup.NewDetector(),
		stations:      stations,
		maxDistance:   maxDistance,
		onlyOperating: onlyOperating,
		serviceID:     serviceID,
		res: &Result{
			ServiceID: serviceID,
			Leads:     []lead.Lead{},
			Proximity: map[string]int{},
		},
	}
}

func (c *collector) add(row localdata.Row) {
	c.res.Fetched++

	if c.onlyOperating && row.StateCode != localdata.StateOperating {
		c.res.Closed++
		return
	}

	l, ok := Convert(row, c.stations, c.maxDistance)
	if !ok {
		c.res.Invalid++
		return
	}
	if l.ServiceID == "" {
		l.ServiceID = c.serviceID
	}

	if !c.det.Offer(l) {
		c.res.Duplicates++
		return
	}
	c.res.Leads = append(c.res.Leads, l)
	c.res.Proximity[geo.Classify(l.StationDistance)]++
}
