package transaction

import (
	"path"
	"regexp"
	"strings"
	"time"
)

var (
	reExtension  = regexp.MustCompile(`\.[^/.]+$`)
	reUnsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// CSVName derives the download name: the original base without its
// extension, then the UTC time as ISO-8601 with ':' and '.' replaced by '-'.
//
//	CSVName("june.pdf", t) == "june-2024-06-30T10-15-00-000Z.csv"
func CSVName(original string, now time.Time) string {
	return withTimestamp(original, now, ".csv")
}

// XLSXName is CSVName for workbooks.
func XLSXName(original string, now time.Time) string {
	return withTimestamp(original, now, ".xlsx")
}

func withTimestamp(original string, now time.Time, ext string) string {
	base := reExtension.ReplaceAllString(original, "")
	if base == "" {
		base = "statement"
	}
	stamp := now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return base + "-" + stamp + ext
}

// RedactedName derives the stored name of a redacted statement.
func RedactedName(original string) string {
	trimmed := strings.TrimSpace(original)
	base := trimmed
	if i := strings.LastIndexByte(trimmed, '.'); i >= 0 {
		base = trimmed[:i]
	}
	safe := reUnsafeName.ReplaceAllString(base, "_")
	if safe == "" {
		safe = "statement"
	}
	return safe + "_redacted.pdf"
}

// RedactedKey is the storage key of a job's redacted statement.
func RedactedKey(jobID, original string) string {
	return path.Join(jobID, RedactedName(original))
}
