package common

// Scene CSV columns
const (
	TagImageIDs         = "Image_IDs"
	TagVisiblePercent   = "Visible_Percent"
	TagGroundControl    = "Ground_Control"
	TagSatelliteAzimuth = "Satellite_Azimuth"
	TagDate             = "Date"
	TagTimeUTC          = "Time_UTC"
)

// SceneCSVHeader is the header of the scene search CSV
var SceneCSVHeader = []string{TagImageIDs, TagVisiblePercent, TagGroundControl, TagSatelliteAzimuth, TagDate, TagTimeUTC}

// Mosaic CSV columns
var MosaicCSVHeader = []string{"id", "name", "interval", "first_acquired", "last_acquired", "bbox", "item_types", "self_link", "quads_link", "tiles_link"}

// Raster metadata keys
const (
	TagCreated     = "created"
	TagSourceDir   = "source_dir"
	TagScenes      = "scenes"
	TagEPSG        = "epsg"
	TagGeojsonUsed = "geojson_used"
	TagIndex       = "index"
	TagSource      = "source"

	TagAreaSqKm = "Area_Sq_Km"
)

// CreatedLayout is the layout of TagCreated
const CreatedLayout = "2006-01-02 15:04:05"
