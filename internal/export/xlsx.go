// Package export writes farm NDVI snapshots to Excel workbooks.
package export

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/farmndvi/internal/geo"
	"github.com/sells-group/farmndvi/internal/model"
)

// SummarySheet is the name of the first sheet in an exported workbook.
const SummarySheet = "Summary"

const maxSheetName = 31

var summaryHeader = []string{"Field ID", "Name", "Crop", "Area (ha)", "Current NDVI", "Health", "Real Data", "Points", "Centroid Lat", "Centroid Lng"}

// Save writes snap to an xlsx file at path.
func Save(snap *model.FarmSnapshot, path string) error {
	f, err := Workbook(snap)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Save(path), "xlsx: save workbook")
}

// Write streams snap as an xlsx workbook to w.
func Write(snap *model.FarmSnapshot, w io.Writer) error {
	f, err := Workbook(snap)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "xlsx: write workbook")
}

// Workbook builds a summary sheet plus one sheet per field holding its
// series. Fields are ordered by id.
func Workbook(snap *model.FarmSnapshot) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add summary sheet")
	}
	addStrings(summary, "Farm", snap.FarmName)
	addStrings(summary, "Farm ID", snap.FarmID)
	addStrings(summary, "Last Updated", snap.LastUpdated.UTC().Format("2006-01-02 15:04:05Z"))
	row := summary.AddRow()
	row.AddCell().SetString("Average NDVI")
	row.AddCell().SetFloat(snap.AverageValue)
	row = summary.AddRow()
	row.AddCell().SetString("Real Imagery")
	row.AddCell().SetBool(snap.UsingRealData)
	row = summary.AddRow()
	row.AddCell().SetString("Real Boundaries")
	row.AddCell().SetBool(snap.UsingRealBoundaries)
	summary.AddRow()
	addStrings(summary, summaryHeader...)

	ids := make([]string, 0, len(snap.Fields))
	for id := range snap.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	used := map[string]bool{strings.ToLower(SummarySheet): true}
	for _, id := range ids {
		rec := snap.Fields[id]

		row := summary.AddRow()
		row.AddCell().SetString(id)
		row.AddCell().SetString(rec.Boundary.Name)
		row.AddCell().SetString(rec.Boundary.Crop)
		if rec.Boundary.AreaHectares != nil {
			row.AddCell().SetFloat(*rec.Boundary.AreaHectares)
		} else {
			row.AddCell()
		}
		row.AddCell().SetFloat(rec.CurrentValue)
		row.AddCell().SetString(rec.CurrentHealth.String())
		row.AddCell().SetBool(rec.IsRealData)
		row.AddCell().SetInt(len(rec.Series))
		// Fields without a usable polygon leave the centroid blank.
		if c, err := geo.Centroid(rec.Boundary.Polygon); err == nil {
			row.AddCell().SetFloat(c.Lat)
			row.AddCell().SetFloat(c.Lng)
		}

		sheet, err := f.AddSheet(SheetName(rec.Boundary.Name, id, used))
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: add sheet for field %s", id)
		}
		addStrings(sheet, "Date", "NDVI", "Health")
		for _, p := range rec.Series {
			r := sheet.AddRow()
			r.AddCell().SetString(p.Date.Format(model.DateLayout))
			r.AddCell().SetFloat(p.Value)
			r.AddCell().SetString(p.Health.String())
		}
	}

	return f, nil
}

// SheetName derives a valid, unique sheet name for a field and records it
// in used. Excel limits names to 31 characters and forbids []:*?/\.
func SheetName(name, id string, used map[string]bool) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = id
	}
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, base)
	base = strings.Trim(base, "'")
	if base == "" {
		base = "Field"
	}

	candidate := truncate(base, maxSheetName)
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := " (" + strconv.Itoa(n) + ")"
		candidate = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func addStrings(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
