package query

import (
	"bufio"
	"context"
	"strings"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
)

const (
	maxRecordSize  = 16 * 1024 * 1024
	reportInterval = 100
)

// ReadRecords streams up to maxRecords raw records from path (0 means all) to fn.
func ReadRecords(ctx context.Context, path string, maxRecords int, fn func(Record) error) error {
	rc, err := Open(path)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConfig, "opening "+path, err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	var buf strings.Builder
	inRecord := false
	count := 0

	for scanner.Scan() {
		if maxRecords > 0 && count >= maxRecords {
			return nil
		}

		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !inRecord {
			if trimmed == "" {
				continue
			}
			if trimmed != "<"+recordTag+">" {
				return apperrors.ParseError("expected <"+recordTag+"> but got: "+trimmed, nil)
			}
			inRecord = true
		}

		buf.WriteString(line)
		buf.WriteByte('\n')

		if trimmed == "</"+recordTag+">" {
			rec := Record(buf.String())
			buf.Reset()
			inRecord = false
			count++

			if count%reportInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeParse, "reading "+path, err)
	}
	if inRecord {
		return apperrors.ParseError("unterminated record at end of "+path, nil)
	}
	return nil
}

// Load reads up to maxQueries raw query records from path (0 means all).
// Records are not parsed here.
func Load(ctx context.Context, path string, maxQueries int, log *logger.Logger) ([]Record, error) {
	var records []Record
	err := ReadRecords(ctx, path, maxQueries, func(rec Record) error {
		records = append(records, rec)
		if len(records)%reportInterval == 0 {
			log.Info("Loading queries", "loaded", len(records))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Loaded queries", "count", len(records), "file", path)
	return records, nil
}
