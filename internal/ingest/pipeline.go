package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/metroad/leadops/internal/geo"
	"github.com/metroad/leadops/pkg/localdata"
)

// Options configures a Pipeline.
type Options struct {
	PageSize           int
	MaxPages           int // 0 = all pages
	Concurrency        int
	OnlyOperating      bool
	MaxStationDistance float64 // metres, 0 = no cut-off
}

// Pipeline pages through one LOCALDATA service and produces session-deduplicated leads.
type Pipeline struct {
	client   localdata.Client
	stations *geo.StationIndex
	opts     Options
}

// NewPipeline creates a Pipeline. stations may be nil to skip station matching.
func NewPipeline(client localdata.Client, stations *geo.StationIndex, opts Options) *Pipeline {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Pipeline{client: client, stations: stations, opts: opts}
}

// Run fetches every page of serviceID. Pages after the first are fetched
// concurrently but their rows are deduplicated in page order, so the first
// occurrence of a record in the service listing is the one kept.
func (p *Pipeline) Run(ctx context.Context, serviceID string) (*Result, error) {
	log := zap.L().With(zap.String("service_id", serviceID))

	first, err := p.client.FetchPage(ctx, localdata.PageRequest{
		ServiceID: serviceID,
		PageIndex: 1,
		PageSize:  p.opts.PageSize,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: fetch first page")
	}

	total := max(first.PageCount(), 1)
	if p.opts.MaxPages > 0 {
		total = min(total, p.opts.MaxPages)
	}
	log.Info("ingest: paging service",
		zap.Int("total_count", first.TotalCount),
		zap.Int("pages", total),
	)

	pages := make([]*localdata.Page, total)
	pages[0] = first

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i := 1; i < total; i++ {
		g.Go(func() error {
			page, err := p.client.FetchPage(gctx, localdata.PageRequest{
				ServiceID: serviceID,
				PageIndex: i + 1,
				PageSize:  p.opts.PageSize,
			})
			if err != nil {
				return eris.Wrapf(err, "ingest: fetch page %d", i+1)
			}
			pages[i] = page
			log.Debug("ingest: page fetched", zap.Int("page", i+1), zap.Int("rows", len(page.Rows)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := newCollector(serviceID, p.stations, p.opts.MaxStationDistance, p.opts.OnlyOperating)
	for _, page := range pages {
		for _, row := range page.Rows {
			c.add(row)
		}
	}
	c.res.Pages = total

	log.Info("ingest: service complete",
		zap.Int("fetched", c.res.Fetched),
		zap.Int("leads", len(c.res.Leads)),
		zap.Int("duplicates", c.res.Duplicates),
		zap.Int("closed", c.res.Closed),
		zap.Int("invalid", c.res.Invalid),
	)
	return c.res, nil
}
