package repository

import (
	"fmt"
	"strings"
	"unicode"
)

// modeCodes maps the mode_of_study labels to their id segment.
var modeCodes = map[string]string{
	"online":    "ODL",
	"odl":       "ODL",
	"distance":  "DL",
	"regular":   "REG",
	"part-time": "PT",
	"part time": "PT",
}

func modeCode(mode string) string {
	if code, ok := modeCodes[strings.ToLower(strings.TrimSpace(mode))]; ok {
		return code
	}
	return "ODL"
}

// yearCode takes the first year of "2025-26".
func yearCode(academicYear string) string {
	year, _, _ := strings.Cut(strings.TrimSpace(academicYear), "-")
	if len(year) != 4 {
		return "0000"
	}
	for _, r := range year {
		if !unicode.IsDigit(r) {
			return "0000"
		}
	}
	return year
}

// idPrefix builds PU/<MODE>/<LSC|DIRECT>/<YEAR>/.
func idPrefix(mode, lscCode, academicYear string) string {
	centre := strings.ToUpper(strings.TrimSpace(lscCode))
	if centre == "" {
		centre = "DIRECT"
	}
	return fmt.Sprintf("PU/%s/%s/%s/", modeCode(mode), centre, yearCode(academicYear))
}

func applicationID(prefix string, serial int64) string {
	return fmt.Sprintf("%s%06d", prefix, serial)
}
