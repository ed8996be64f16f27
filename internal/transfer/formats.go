package transfer

// imageTypeToExtension maps the farm's render format identifiers to the
// file extension of composited output frames.
var imageTypeToExtension = map[string]string{
	"BMP":                 "bmp",
	"IRIS":                "iris",
	"PNG":                 "png",
	"JPEG":                "jpg",
	"JPEG2000":            "jp2",
	"TARGA":               "tga",
	"TARGA_RAW":           "tga",
	"CINEON":              "cin",
	"DPX":                 "dpx",
	"OPEN_EXR":            "exr",
	"OPEN_EXR_MULTILAYER": "exr",
	"HDR":                 "hdr",
	"TIFF":                "tif",
	"WEBP":                "webp",
}

// compositeExtension returns the output extension for a render format.
func compositeExtension(renderFormat string) string {
	if ext, ok := imageTypeToExtension[renderFormat]; ok {
		return ext
	}
	return "unknown"
}
