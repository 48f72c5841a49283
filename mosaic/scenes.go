package mosaic

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service"
)

const (
	// SceneSuffix ends the name of the clipped and harmonized surface reflectance scenes
	SceneSuffix = "harmonized_clip.tif"
	udmSuffix   = "3B_udm2_clip.tif"
)

// DateGroup is the list of scenes acquired on the same day
type DateGroup struct {
	Date   string // YYYYMMDD
	Scenes []string
}

// OutputPath returns the path of the mosaic of the date: <outDir>/<date>.tif
func OutputPath(outDir, date string) string {
	return filepath.Join(outDir, date+"."+string(service.ExtensionGTiff))
}

// GroupByDate lists the scenes of dir acquired between start and end (dates included, zero: no limit)
// and groups them by date. Dates whose mosaic already exists in outDir are skipped.
func GroupByDate(dir string, start, end time.Time, outDir string) ([]DateGroup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("GroupByDate.ReadDir: %w", err)
	}
	startKey, endKey := "", ""
	if !start.IsZero() {
		startKey = start.Format(common.DateKeyLayout)
	}
	if !end.IsZero() {
		endKey = end.Format(common.DateKeyLayout)
	}

	groups := map[string][]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SceneSuffix) {
			continue
		}
		date, _, _ := strings.Cut(e.Name(), "_")
		if (startKey != "" && date < startKey) || (endKey != "" && date > endKey) {
			continue
		}
		groups[date] = append(groups[date], filepath.Join(dir, e.Name()))
	}

	var res []DateGroup
	for date, scenes := range groups {
		if outDir != "" && service.FileExists(OutputPath(outDir, date)) {
			continue
		}
		sort.Strings(scenes)
		res = append(res, DateGroup{Date: date, Scenes: scenes})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res, nil
}

// UDMPath returns the path of the usable data mask of the scene ("" if the scene name has no "3B")
func UDMPath(scene string) string {
	dir, name := filepath.Split(scene)
	i := strings.Index(name, "3B")
	if i < 0 {
		return ""
	}
	return dir + name[:i] + udmSuffix
}
