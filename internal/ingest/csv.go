package ingest

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/metroad/leadops/internal/fetcher"
	"github.com/metroad/leadops/internal/geo"
	"github.com/metroad/leadops/pkg/localdata"
)

// CSVOptions configures ImportCSV.
type CSVOptions struct {
	Encoding           fetcher.Encoding
	ServiceID          string // used when the dump has no service id column
	OnlyOperating      bool
	MaxStationDistance float64
	Stations           *geo.StationIndex
}

// csvColumns maps LOCALDATA dump headers (spaces removed, lowercased) to row fields.
var csvColumns = map[string]func(*localdata.Row, string){
	"사업장명":     func(r *localdata.Row, v string) { r.BusinessName = v },
	"도로명전체주소":  func(r *localdata.Row, v string) { r.RoadAddress = v },
	"소재지전체주소":  func(r *localdata.Row, v string) { r.LotAddress = v },
	"소재지전화":    func(r *localdata.Row, v string) { r.Phone = v },
	"전화번호":     func(r *localdata.Row, v string) { r.Phone = v },
	"인허가일자":    func(r *localdata.Row, v string) { r.LicenseDate = v },
	"관리번호":     func(r *localdata.Row, v string) { r.ManagementNo = v },
	"업태구분명":    func(r *localdata.Row, v string) { r.Category = v },
	"영업상태구분코드": func(r *localdata.Row, v string) { r.StateCode = v },
	"개방서비스아이디": func(r *localdata.Row, v string) { r.ServiceID = v },
	"진료과목내용":   func(r *localdata.Row, v string) { r.MedicalSubject = v },
}

func headerKey(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), ""))
}

// columnSetter resolves a header cell, including the coordinate columns whose
// names vary between dump vintages ("좌표정보(X)", "좌표정보x(EPSG5174)").
func columnSetter(h string) func(*localdata.Row, string) {
	key := headerKey(h)
	if set, ok := csvColumns[key]; ok {
		return set
	}
	if strings.HasPrefix(key, "좌표정보") {
		switch rest := strings.TrimPrefix(key, "좌표정보"); {
		case strings.Contains(rest, "x"):
			return func(r *localdata.Row, v string) { r.X = v }
		case strings.Contains(rest, "y"):
			return func(r *localdata.Row, v string) { r.Y = v }
		}
	}
	return nil
}

// ImportCSV reads a LOCALDATA CSV dump and returns session-deduplicated leads.
// The first record must be the header row.
func ImportCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Result, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Encoding:   opts.Encoding,
		LazyQuotes: true,
	})

	c := newCollector(opts.ServiceID, opts.Stations, opts.MaxStationDistance, opts.OnlyOperating)

	var setters []func(*localdata.Row, string)
	var headerErr error
	for record := range rowCh {
		if headerErr != nil {
			continue // drain
		}
		if setters == nil {
			setters, headerErr = mapHeader(record)
			continue
		}

		var row localdata.Row
		for i, v := range record {
			if i < len(setters) && setters[i] != nil {
				setters[i](&row, v)
			}
		}
		c.add(row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "ingest: read csv")
	}
	if headerErr != nil {
		return nil, headerErr
	}
	if setters == nil {
		return nil, eris.New("ingest: csv is empty")
	}

	zap.L().Info("ingest: csv import complete",
		zap.Int("rows", c.res.Fetched),
		zap.Int("leads", len(c.res.Leads)),
		zap.Int("duplicates", c.res.Duplicates),
		zap.Int("closed", c.res.Closed),
		zap.Int("invalid", c.res.Invalid),
	)
	return c.res, nil
}

func mapHeader(header []string) ([]func(*localdata.Row, string), error) {
	setters := make([]func(*localdata.Row, string), len(header))
	hasName := false
	for i, h := range header {
		setters[i] = columnSetter(h)
		if headerKey(h) == "사업장명" {
			hasName = true
		}
	}
	if !hasName {
		return nil, eris.New("ingest: csv header has no 사업장명 column")
	}
	return setters, nil
}
