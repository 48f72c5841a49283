package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/airbusgeo/reserve-monitor/common"
)

const (
	csvDateLayout = "2006-01-02"
	csvTimeLayout = "15:04:05.999999"
)

// WriteScenesCSV writes the scenes with the columns Image_IDs, Visible_Percent, Ground_Control, Satellite_Azimuth, Date, Time_UTC
// An unknown visible percent is written as an empty cell
func WriteScenesCSV(w io.Writer, scenes []common.Scene) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(common.SceneCSVHeader); err != nil {
		return fmt.Errorf("WriteScenesCSV: %w", err)
	}
	for _, s := range scenes {
		visible := ""
		if v := s.Visible(); !math.IsNaN(v) {
			visible = strconv.FormatFloat(v, 'f', -1, 64)
		}
		acquired := s.Properties.Acquired.UTC()
		if err := cw.Write([]string{
			s.ID,
			visible,
			strconv.FormatBool(s.Properties.GroundControl),
			strconv.FormatFloat(s.Properties.SatelliteAzimuth, 'f', -1, 64),
			acquired.Format(csvDateLayout),
			acquired.Format(csvTimeLayout),
		}); err != nil {
			return fmt.Errorf("WriteScenesCSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteScenesCSV: %w", err)
	}
	return nil
}

// ReadSceneIDs reads the Image_IDs column of a CSV written by WriteScenesCSV
func ReadSceneIDs(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ReadSceneIDs.header: %w", err)
	}
	col := -1
	for i, h := range header {
		if h == common.TagImageIDs {
			col = i
			break
		}
	}
	if col == -1 {
		return nil, fmt.Errorf("ReadSceneIDs: missing column %s", common.TagImageIDs)
	}
	var ids []string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadSceneIDs: %w", err)
		}
		if col < len(record) && record[col] != "" {
			ids = append(ids, record[col])
		}
	}
	return ids, nil
}
