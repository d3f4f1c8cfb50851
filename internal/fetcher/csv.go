// Package fetcher opens and streams the CSV dumps LOCALDATA publishes for bulk download.
package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// Encoding names the byte encoding of a CSV source.
type Encoding string

const (
	EncodingUTF8  Encoding = "utf-8"
	EncodingEUCKR Encoding = "euc-kr"
	// EncodingAuto sniffs the first block and picks UTF-8 when it decodes cleanly, else EUC-KR.
	EncodingAuto Encoding = "auto"
)

// ParseEncoding maps a user-supplied name to an Encoding. "" means auto.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "euc-kr", "euckr", "cp949":
		return EncodingEUCKR, nil
	default:
		return "", eris.Errorf("csv: unknown encoding %q", s)
	}
}

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	Comment    rune            // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
	Encoding   Encoding // default UTF-8
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const sniffSize = 4096

// Decode wraps r so that it yields UTF-8 text. A leading UTF-8 BOM is dropped.
func Decode(r io.Reader, enc Encoding) (io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffSize)

	if enc == "" {
		enc = EncodingUTF8
	}
	if enc == EncodingAuto {
		head, err := br.Peek(sniffSize)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, eris.Wrap(err, "csv: sniff encoding")
		}
		enc = sniff(head, err == io.EOF)
	}

	switch enc {
	case EncodingUTF8:
		if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			_, _ = br.Discard(len(utf8BOM))
		}
		return br, nil
	case EncodingEUCKR:
		return transform.NewReader(br, korean.EUCKR.NewDecoder()), nil
	default:
		return nil, eris.Errorf("csv: unsupported encoding %q", enc)
	}
}

// sniff picks UTF-8 when head is valid UTF-8. A rune cut off by the end of a
// partial block does not count against it.
func sniff(head []byte, complete bool) Encoding {
	if bytes.HasPrefix(head, utf8BOM) {
		return EncodingUTF8
	}
	if !complete {
		for i := len(head) - 1; i >= 0 && i >= len(head)-utf8.UTFMax; i-- {
			if utf8.RuneStart(head[i]) {
				if !utf8.FullRune(head[i:]) {
					head = head[:i]
				}
				break
			}
		}
	}
	if utf8.Valid(head) {
		return EncodingUTF8
	}
	return EncodingEUCKR
}

// StreamCSV reads a CSV file and sends rows to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		decoded, err := Decode(r, opts.Encoding)
		if err != nil {
			errCh <- err
			return
		}

		reader := csv.NewReader(decoded)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
