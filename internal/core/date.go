// Package core holds the facturas domain model and date conventions.
//
// Two date forms exist: the display form dd/mm/yyyy used by callers and the
// legacy data files, and the ISO form YYYY-MM-DD stored in SQLite. The ISO
// form is fixed-width, so lexicographic ordering matches calendar ordering
// and BETWEEN filters work on the raw text column.
package core

import "time"

const (
	// DisplayDate is the dd/mm/yyyy form used at the API boundary.
	DisplayDate = "02/01/2006"
	// ISODate is the YYYY-MM-DD form stored in the database.
	ISODate = "2006-01-02"
)

// ToISO converts a display-form date to ISO form.
func ToISO(display string) (string, error) {
	t, err := time.Parse(DisplayDate, display)
	if err != nil {
		return "", err
	}
	return t.Format(ISODate), nil
}

// FromISO converts an ISO-form date to display form. Values that do not
// parse are returned unchanged, matching the original read path which left
// unconvertible dates as-is rather than dropping the row.
func FromISO(iso string) string {
	t, err := time.Parse(ISODate, iso)
	if err != nil {
		return iso
	}
	return t.Format(DisplayDate)
}

// Today returns the current date in ISO form. It is the substitute value for
// unparseable dates on the write path.
func Today() string {
	return time.Now().Format(ISODate)
}
