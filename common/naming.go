package common

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// PlanetScope scene ids: YYYYMMDD_HHMMSS_SSSS or YYYYMMDD_HHMMSS_SS_SSSS
var sceneIDRegexp = regexp.MustCompile(`^(\d{8})_(\d{6})(_\d+)+`)

const (
	DateKeyLayout     = "20060102"
	DateTimeKeyLayout = "20060102_150405"
)

// DateKey returns the YYYYMMDD key of a scene id or a product file name
func DateKey(name string) string {
	name = filepath.Base(name)
	if len(name) < len(DateKeyLayout) {
		return name
	}
	return name[:len(DateKeyLayout)]
}

// DateTimeKey returns the YYYYMMDD_HHMMSS key of a scene id
func DateTimeKey(sceneID string) string {
	if len(sceneID) < len(DateTimeKeyLayout) {
		return sceneID
	}
	return sceneID[:len(DateTimeKeyLayout)]
}

// FileDateTimeKey returns the first two "_"-separated fields of a file name,
// that is the date+time key of the scene the file comes from.
func FileDateTimeKey(fileName string) string {
	parts := strings.Split(filepath.Base(fileName), "_")
	if len(parts) < 2 {
		return parts[0]
	}
	return parts[0] + "_" + parts[1]
}

// GetDateFromSceneID parses the acquisition date of a scene id (UTC)
func GetDateFromSceneID(sceneID string) (time.Time, error) {
	m := sceneIDRegexp.FindStringSubmatch(sceneID)
	if m == nil {
		return time.Time{}, fmt.Errorf("GetDateFromSceneID: unrecognized scene id %s", sceneID)
	}
	return time.Parse(DateTimeKeyLayout, m[1]+"_"+m[2])
}

// IsSceneID returns true if the string looks like a PlanetScope scene id
func IsSceneID(s string) bool {
	return sceneIDRegexp.MatchString(s)
}

// MonthlyMosaicDate extracts the YYYY_MM date of a monthly mosaic name (<...>_YYYY_MM_mosaic)
func MonthlyMosaicDate(name string) (string, error) {
	if len(name) < 14 {
		return "", fmt.Errorf("MonthlyMosaicDate: name too short: %s", name)
	}
	return name[len(name)-14 : len(name)-7], nil
}
